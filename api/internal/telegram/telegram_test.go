package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/prompt"
	"bodyscan-coach/api/internal/store"
	"bodyscan-coach/api/internal/workflow"
)

// #region fakes
type fakeBot struct {
	mu      sync.Mutex
	texts   []string
	markups int
	fileURL string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		b.texts = append(b.texts, m.Text)
	case tgbotapi.EditMessageReplyMarkupConfig:
		b.markups++
	}
	return tgbotapi.Message{MessageID: len(b.texts)}, nil
}

func (b *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(string) (string, error) { return b.fileURL, nil }

func (b *fakeBot) all() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.texts, "\n---\n")
}

func (b *fakeBot) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.texts) == 0 {
		return ""
	}
	return b.texts[len(b.texts)-1]
}

type scriptedEngine struct {
	mu      sync.Mutex
	replies []string
	reqs    []analysis.Request
}

func (e *scriptedEngine) Name() string     { return "gpt" }
func (e *scriptedEngine) GetModel() string { return "gpt-4o" }
func (e *scriptedEngine) Complete(_ context.Context, req analysis.Request) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	if len(e.replies) == 0 {
		return "", analysis.UpstreamError(503, nil)
	}
	out := e.replies[0]
	e.replies = e.replies[1:]
	return out, nil
}

type memSaver struct {
	mu   sync.Mutex
	reps []store.Report
}

func (m *memSaver) Save(_ context.Context, rep store.Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep.ID = string(rep.Kind) + "-id"
	m.reps = append(m.reps, rep)
	return rep.ID, nil
}

// #endregion fakes

const firstReading = `{"one_line_summary": "Muscle is low.",
 "metrics": [{"name": "weight", "value": "65.3kg", "status": "normal"},
             {"name": "skeletal muscle mass", "value": "24.1kg", "status": "caution"}],
 "interpretation": [], "solution": {"daily_routine": [], "fat_management": [], "muscle_metabolism": []},
 "coach_script": [], "sms_result": ""}`

const finalReport = "```json\n" + `{"one_line_summary": "Build muscle gently.",
 "metrics": [{"name": "weight", "value": "65.3kg", "status": "normal"},
             {"name": "skeletal muscle mass", "value": "26.0kg", "status": "normal"}],
 "interpretation": [{"title": "Muscle", "detail": "Close to standard."}],
 "solution": {"daily_routine": [{"timing": "morning", "items": [{"product": "Shake", "why": "protein", "how": "1 glass"}]}],
              "fat_management": [], "muscle_metabolism": [{"point": "legs", "action": "squats", "product_suggestion": ""}]},
 "coach_script": ["Hello!", "Great job."], "sms_result": "See you next week!"}` + "\n```"

func newTestRouter(t *testing.T, eng *scriptedEngine, saver ReportSaver) (*Router, *fakeBot) {
	t.Helper()
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10})
	}))
	t.Cleanup(img.Close)

	ps, err := prompt.Load("")
	if err != nil {
		t.Fatal(err)
	}
	svc := analysis.NewService(&analysis.Engines{OpenAI: eng, Default: "gpt"}, ps, analysis.Options{})
	bot := &fakeBot{fileURL: img.URL + "/photo.jpg"}
	r := NewRouter(bot, svc, saver, workflow.Options{}, time.Second)
	r.spawn = func(f func()) { f() }
	return r, bot
}

func photoUpdate(cid int64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: cid},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}}
}

func textUpdate(cid int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: cid}, Text: text}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(cid int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: cid}},
	}}
}

func TestFlow_PhotoEditConfirm(t *testing.T) {
	eng := &scriptedEngine{replies: []string{firstReading, finalReport}}
	saver := &memSaver{}
	r, bot := newTestRouter(t, eng, saver)

	r.HandleUpdate(photoUpdate(1))
	if !strings.Contains(bot.last(), "2. skeletal muscle mass: 24.1kg") {
		t.Fatalf("metrics not shown:\n%s", bot.all())
	}
	if eng.reqs[0].ImageMIME != "image/jpeg" {
		t.Fatalf("mime = %q", eng.reqs[0].ImageMIME)
	}

	r.HandleUpdate(textUpdate(1, "2 26.0kg"))
	if !strings.Contains(bot.last(), "26.0kg  ✏️ was 24.1kg") {
		t.Fatalf("edit not shown:\n%s", bot.last())
	}

	r.HandleUpdate(callbackUpdate(1, cbConfirm))
	if len(eng.reqs) != 2 {
		t.Fatalf("upstream calls = %d", len(eng.reqs))
	}
	if !strings.Contains(eng.reqs[1].User, `"26.0kg"`) || !strings.Contains(eng.reqs[1].User, "Muscle is low.") {
		t.Fatalf("reanalyze prompt:\n%s", eng.reqs[1].User)
	}
	out := bot.all()
	for _, want := range []string{"📊 Build muscle gently.", "🗣 Coach script", "See you next week!", "Shake"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if bot.markups != 1 {
		t.Fatalf("keyboard cleared %d times", bot.markups)
	}

	if len(saver.reps) != 2 {
		t.Fatalf("saved %d reports", len(saver.reps))
	}
	first, final := saver.reps[0], saver.reps[1]
	if first.Kind != store.KindAnalysis || first.ImageHash == "" || first.Engine != "gpt" || first.Goal != analysis.GoalBalanced {
		t.Fatalf("first report = %+v", first)
	}
	if final.Kind != store.KindReanalysis || final.ParentID != "analysis-id" {
		t.Fatalf("final report = %+v", final)
	}
	if r.chat(1).ctl.State() != workflow.Complete {
		t.Fatalf("state = %v", r.chat(1).ctl.State())
	}
}

func TestFlow_FailedConfirmKeepsEdits(t *testing.T) {
	eng := &scriptedEngine{replies: []string{firstReading}}
	r, bot := newTestRouter(t, eng, nil)

	r.HandleUpdate(photoUpdate(2))
	r.HandleUpdate(textUpdate(2, "1 64kg"))
	r.HandleUpdate(callbackUpdate(2, cbConfirm))

	if !strings.Contains(bot.all(), "status 503") {
		t.Fatalf("upstream failure not reported:\n%s", bot.all())
	}
	if !strings.Contains(bot.last(), "1. weight: 64kg") {
		t.Fatalf("edits not shown again:\n%s", bot.last())
	}
	if r.chat(2).ctl.State() != workflow.Verifying {
		t.Fatalf("state = %v", r.chat(2).ctl.State())
	}
}

func TestFlow_CancelAndReset(t *testing.T) {
	eng := &scriptedEngine{replies: []string{firstReading}}
	r, bot := newTestRouter(t, eng, nil)

	r.HandleUpdate(photoUpdate(3))
	r.HandleUpdate(textUpdate(3, "1 70kg"))
	r.HandleUpdate(textUpdate(3, "/reset 1"))
	if !strings.Contains(bot.last(), "1. weight: 65.3kg (normal)") {
		t.Fatalf("reset not applied:\n%s", bot.last())
	}
	r.HandleUpdate(textUpdate(3, "/reset 9"))
	if !strings.Contains(bot.last(), "no metric with that number") {
		t.Fatalf("bad index reply: %q", bot.last())
	}

	r.HandleUpdate(callbackUpdate(3, cbCancel))
	if !strings.HasPrefix(bot.last(), "Cancelled") || r.chat(3).ctl.Session() != nil {
		t.Fatalf("cancel failed: %q", bot.last())
	}
	r.HandleUpdate(textUpdate(3, "1 70kg"))
	if !strings.Contains(bot.last(), "Nothing to verify") {
		t.Fatalf("edit after cancel: %q", bot.last())
	}
}

func TestCommands_Options(t *testing.T) {
	r, bot := newTestRouter(t, &scriptedEngine{}, nil)

	r.HandleUpdate(textUpdate(4, "/goal muscle-priority"))
	r.HandleUpdate(textUpdate(4, "/tone concise"))
	opt := r.chat(4).ctl.Options()
	if opt.Goal != analysis.GoalMusclePriority || opt.Tone != analysis.ToneConcise {
		t.Fatalf("options = %+v", opt)
	}

	r.HandleUpdate(textUpdate(4, "/goal bulk"))
	if !strings.HasPrefix(bot.last(), "Unknown goal") {
		t.Fatalf("reply = %q", bot.last())
	}
	r.HandleUpdate(textUpdate(4, "/engine gemini"))
	if !strings.Contains(bot.last(), "not configured") {
		t.Fatalf("reply = %q", bot.last())
	}
	r.HandleUpdate(textUpdate(4, "/engine"))
	if !strings.Contains(bot.last(), "gpt (gpt-4o)") {
		t.Fatalf("reply = %q", bot.last())
	}
}

// #region formatting
func TestParseEdit(t *testing.T) {
	cases := []struct {
		in    string
		idx   int
		value string
		ok    bool
	}{
		{"2 24.5kg", 1, "24.5kg", true},
		{" 3.  27.9 % ", 2, "27.9 %", true},
		{"1: 64kg", 0, "64kg", true},
		{"0 64kg", 0, "", false},
		{"hello", 0, "", false},
		{"2", 0, "", false},
	}
	for _, c := range cases {
		idx, v, ok := parseEdit(c.in)
		if ok != c.ok || (ok && (idx != c.idx || v != c.value)) {
			t.Errorf("parseEdit(%q) = %d %q %v", c.in, idx, v, ok)
		}
	}
}

func TestFormatSession_BlankFallsBack(t *testing.T) {
	s := workflow.NewSession(analysis.AnalysisResult{Metrics: []analysis.Metric{{Name: analysis.MetricBMI, Value: "23.4"}}})
	_ = s.Edit(0, "")
	if got := formatSession(s); !strings.Contains(got, "(blank, will use 23.4)") {
		t.Fatalf("formatSession:\n%s", got)
	}
}

func TestChunk(t *testing.T) {
	text := strings.Repeat("line of text\n", 50)
	parts := chunk(text, 100)
	if len(parts) < 6 {
		t.Fatalf("parts = %d", len(parts))
	}
	for _, p := range parts {
		if len([]rune(p)) > 100 {
			t.Fatalf("part too long: %d", len([]rune(p)))
		}
	}
	if got := chunk("short", 100); len(got) != 1 || got[0] != "short" {
		t.Fatalf("chunk(short) = %v", got)
	}
}

// #endregion formatting

func TestFlow_NewPhotoReplacesReading(t *testing.T) {
	eng := &scriptedEngine{replies: []string{firstReading, firstReading}}
	r, bot := newTestRouter(t, eng, nil)

	r.HandleUpdate(photoUpdate(5))
	r.HandleUpdate(textUpdate(5, "1 80kg"))
	r.HandleUpdate(photoUpdate(5))

	if len(eng.reqs) != 2 {
		t.Fatalf("upstream calls = %d", len(eng.reqs))
	}
	if s := r.chat(5).ctl.Session(); s == nil || s.EditedMetrics[0].Value != "65.3kg" {
		t.Fatalf("old edit survived: %+v", s)
	}
	if !strings.Contains(bot.last(), "1. weight: 65.3kg") {
		t.Fatalf("reply = %q", bot.last())
	}
}
