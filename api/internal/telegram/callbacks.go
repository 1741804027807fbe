package telegram

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bodyscan-coach/api/internal/store"
	"bodyscan-coach/api/internal/workflow"
)

const (
	cbConfirm = "verify_confirm"
	cbCancel  = "verify_cancel"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	if _, err := r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil { // ack
		log.Printf("telegram callback ack: %v", err)
	}

	c := r.chat(cid)
	switch cb.Data {
	case cbConfirm:
		switch c.ctl.State() {
		case workflow.Verifying:
		case workflow.AwaitingAnalysis, workflow.Reanalyzing:
			r.send(cid, userMessage(workflow.ErrBusy))
			return
		default:
			r.send(cid, userMessage(workflow.ErrState))
			return
		}
		r.clearKeyboard(cid, cb.Message.MessageID)
		r.send(cid, "🔄 Building your report from the confirmed numbers…")
		r.spawn(func() { r.runConfirm(cid, c) })
	case cbCancel:
		r.clearKeyboard(cid, cb.Message.MessageID)
		r.cancel(cid, c)
	}
}

func (r *Router) runConfirm(cid int64, c *chat) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	opt := c.ctl.Options()
	res, err := c.ctl.Confirm(ctx)
	if err != nil {
		r.send(cid, userMessage(err))
		if c.ctl.State() == workflow.Verifying {
			// edits are kept; let the user retry
			r.showSession(cid, c)
		}
		return
	}

	c.mu.Lock()
	parent := c.lastReport
	c.mu.Unlock()
	id := r.saveReport(ctx, store.Report{
		Kind:     store.KindReanalysis,
		ParentID: parent,
		Engine:   opt.LLM,
		Goal:     opt.Goal,
		Tone:     opt.Tone,
		Result:   res,
	})
	c.mu.Lock()
	c.imageHash, c.lastReport = "", id
	c.mu.Unlock()

	for _, part := range formatResult(res) {
		r.send(cid, part)
	}
}

func (r *Router) clearKeyboard(cid int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(cid, msgID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := r.Bot.Send(edit); err != nil {
		log.Printf("telegram edit markup: %v", err)
	}
}
