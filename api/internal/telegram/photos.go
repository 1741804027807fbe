package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bodyscan-coach/api/internal/store"
	"bodyscan-coach/api/internal/util"
	"bodyscan-coach/api/internal/workflow"
)

const maxImageBytes = 20 << 20

func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	// largest size is last
	ph := msg.Photo[len(msg.Photo)-1]
	r.acceptImage(msg.Chat.ID, ph.FileID, "")
}

func (r *Router) acceptDocument(msg tgbotapi.Message) {
	r.acceptImage(msg.Chat.ID, msg.Document.FileID, msg.Document.MimeType)
}

func (r *Router) acceptImage(cid int64, fileID, mime string) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.send(cid, fmt.Sprintf("❌ Could not fetch the photo: %v", err))
		return
	}
	img, err := download(url)
	if err != nil {
		r.send(cid, fmt.Sprintf("❌ Could not fetch the photo: %v", err))
		return
	}

	c := r.chat(cid)
	// a new photo replaces the reading being verified
	if st := c.ctl.State(); st == workflow.Verifying || st == workflow.Complete {
		_ = c.ctl.Cancel()
	}
	r.send(cid, "📥 Photo received, reading the numbers…")
	r.spawn(func() { r.runAnalyze(cid, c, img, mime) })
}

func (r *Router) runAnalyze(cid int64, c *chat, img []byte, mime string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	opt := c.ctl.Options()
	res, err := c.ctl.Submit(ctx, img, mime)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}

	hash := util.SHA256Hex(img)
	id := r.saveReport(ctx, store.Report{
		Kind:      store.KindAnalysis,
		ImageHash: hash,
		Engine:    opt.LLM,
		Goal:      opt.Goal,
		Tone:      opt.Tone,
		Result:    res,
	})
	c.mu.Lock()
	c.imageHash, c.lastReport = hash, id
	c.mu.Unlock()

	if s := res.OneLineSummary; s != "" {
		r.send(cid, "📝 "+s)
	}
	r.showSession(cid, c)
}

func download(url string) ([]byte, error) {
	resp, err := httpClient().Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxImageBytes {
		return nil, fmt.Errorf("image is larger than %d MiB", maxImageBytes>>20)
	}
	return b, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
