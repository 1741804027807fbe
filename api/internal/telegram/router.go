package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/store"
	"bodyscan-coach/api/internal/workflow"
)

// Bot is the slice of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type ReportSaver interface {
	Save(ctx context.Context, rep store.Report) (string, error)
}

type Router struct {
	Bot      Bot
	Svc      *analysis.Service
	Reports  ReportSaver // optional
	Defaults workflow.Options
	Timeout  time.Duration

	chats sync.Map // chatID -> *chat
	spawn func(func())
}

// chat is the per-chat verification flow.
type chat struct {
	ctl *workflow.Controller

	mu         sync.Mutex
	imageHash  string
	lastReport string
}

func NewRouter(bot Bot, svc *analysis.Service, reports ReportSaver, defaults workflow.Options, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Router{
		Bot:      bot,
		Svc:      svc,
		Reports:  reports,
		Defaults: defaults,
		Timeout:  timeout,
		spawn:    func(f func()) { go f() },
	}
}

func (r *Router) chat(chatID int64) *chat {
	if v, ok := r.chats.Load(chatID); ok {
		return v.(*chat)
	}
	v, _ := r.chats.LoadOrStore(chatID, &chat{ctl: workflow.NewController(r.Svc, r.Defaults)})
	return v.(*chat)
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	// callback-кнопки
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.HandleCommand(msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(*msg)
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		r.acceptDocument(*msg)
	case strings.TrimSpace(msg.Text) != "":
		r.handleText(cid, msg.Text)
	}
}

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	c := r.chat(cid)
	arg := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)

	case "goal":
		opt := c.ctl.Options()
		if arg == "" {
			r.send(cid, fmt.Sprintf("Current goal: %s\nUse: /goal balanced | fat-priority | muscle-priority", orDefault(string(opt.Goal), string(analysis.GoalBalanced))))
			return
		}
		g := analysis.Goal(strings.ToLower(arg))
		if !g.Valid() {
			r.send(cid, "Unknown goal. Available: balanced | fat-priority | muscle-priority")
			return
		}
		opt.Goal = g
		r.setOptions(cid, c, opt, "✅ Goal: "+string(g))

	case "tone":
		opt := c.ctl.Options()
		if arg == "" {
			r.send(cid, fmt.Sprintf("Current tone: %s\nUse: /tone gentle | professional | concise", orDefault(string(opt.Tone), string(analysis.ToneGentle))))
			return
		}
		t := analysis.Tone(strings.ToLower(arg))
		if !t.Valid() {
			r.send(cid, "Unknown tone. Available: gentle | professional | concise")
			return
		}
		opt.Tone = t
		r.setOptions(cid, c, opt, "✅ Tone: "+string(t))

	case "engine":
		opt := c.ctl.Options()
		if arg == "" {
			cur := "not configured"
			if eng, err := r.Svc.Engine(opt.LLM); err == nil {
				cur = eng.Name() + " (" + eng.GetModel() + ")"
			}
			r.send(cid, "Current engine: "+cur+"\nUse: /engine gpt | gemini")
			return
		}
		eng, err := r.Svc.Engine(arg)
		if err != nil {
			r.send(cid, userMessage(err))
			return
		}
		opt.LLM = eng.Name()
		r.setOptions(cid, c, opt, "✅ Engine: "+eng.Name()+" ("+eng.GetModel()+")")

	case "metrics":
		r.showSession(cid, c)

	case "reset":
		n, err := strconv.Atoi(arg)
		if err != nil {
			r.send(cid, "Use: /reset N, where N is the metric number.")
			return
		}
		if err := c.ctl.Reset(n - 1); err != nil {
			r.send(cid, userMessage(err))
			return
		}
		r.showSession(cid, c)

	case "cancel":
		r.cancel(cid, c)

	default:
		r.send(cid, "Unknown command. /help lists them.")
	}
}

func (r *Router) setOptions(cid int64, c *chat, opt workflow.Options, ok string) {
	if err := c.ctl.SetOptions(opt); err != nil {
		r.send(cid, userMessage(err))
		return
	}
	r.send(cid, ok)
}

// handleText treats "N value" as a correction of metric N.
func (r *Router) handleText(cid int64, text string) {
	c := r.chat(cid)
	i, value, ok := parseEdit(text)
	if !ok {
		if c.ctl.State() == workflow.Verifying {
			r.send(cid, "To correct a number send \"N value\", e.g. \"2 24.5kg\". /reset N restores the reading.")
		} else {
			r.send(cid, helpText)
		}
		return
	}
	if err := c.ctl.Edit(i, value); err != nil {
		r.send(cid, userMessage(err))
		return
	}
	r.showSession(cid, c)
}

func (r *Router) cancel(cid int64, c *chat) {
	if err := c.ctl.Cancel(); err != nil {
		r.send(cid, userMessage(err))
		return
	}
	c.mu.Lock()
	c.imageHash, c.lastReport = "", ""
	c.mu.Unlock()
	r.send(cid, "Cancelled. Send a new photo whenever you are ready.")
}

func (r *Router) showSession(cid int64, c *chat) {
	s := c.ctl.Session()
	if s == nil {
		r.send(cid, userMessage(workflow.ErrState))
		return
	}
	msg := tgbotapi.NewMessage(cid, formatSession(s))
	msg.ReplyMarkup = makeVerifyKeyboard()
	if _, err := r.Bot.Send(msg); err != nil {
		log.Printf("telegram send: %v", err)
	}
}

func (r *Router) send(chatID int64, text string) {
	for _, part := range chunk(text, maxMessageLen) {
		if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			log.Printf("telegram send: %v", err)
			return
		}
	}
}

func (r *Router) saveReport(ctx context.Context, rep store.Report) string {
	if r.Reports == nil {
		return ""
	}
	if eng, err := r.Svc.Engine(rep.Engine); err == nil {
		rep.Engine, rep.Model = eng.Name(), eng.GetModel()
	}
	rep.Goal, rep.Tone, _ = analysis.ResolveOptions(rep.Goal, rep.Tone)
	id, err := r.Reports.Save(ctx, rep)
	if err != nil {
		log.Printf("save %s report: %v", rep.Kind, err)
		return ""
	}
	return id
}

// userMessage turns any error from the flow into a chat reply.
func userMessage(err error) string {
	var ae *analysis.Error
	switch {
	case errors.Is(err, workflow.ErrBusy):
		return "⏳ Still working on your previous request, please wait."
	case errors.Is(err, workflow.ErrIndex):
		return "There is no metric with that number. /metrics shows the list."
	case errors.Is(err, workflow.ErrState):
		return "Nothing to verify right now. Send a photo of your body-composition sheet first."
	case errors.As(err, &ae):
		switch ae.Kind {
		case analysis.KindInput:
			return "⚠️ " + ae.Message
		case analysis.KindUpstream:
			return "❌ The analysis service failed (" + ae.Message + "). Please try again."
		case analysis.KindFormat:
			return "❌ Could not read the analysis (" + ae.Message + "). Please try again."
		}
	}
	return "❌ Something went wrong. Please try again."
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

const helpText = `Send a photo of your body-composition (InBody) sheet and I will read the numbers.
Then check them: send "N value" to correct metric N, /reset N to restore it, and press Confirm for the full report.

Commands:
/goal balanced | fat-priority | muscle-priority
/tone gentle | professional | concise
/engine gpt | gemini
/metrics - show the numbers being verified
/cancel - drop the current reading`
