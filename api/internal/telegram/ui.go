package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/workflow"
)

const maxMessageLen = 4000

// Кнопки подтверждения распознанных метрик
func makeVerifyKeyboard() tgbotapi.InlineKeyboardMarkup {
	ok := tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", cbConfirm)
	no := tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", cbCancel)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(ok, no))
}

var reEdit = regexp.MustCompile(`^\s*(\d{1,2})\s*[.):=]?\s+(.*\S)\s*$`)

// parseEdit reads "N value" with N counted from 1. It returns a 0-based index.
func parseEdit(text string) (int, string, bool) {
	m := reEdit.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, "", false
	}
	return n - 1, m[2], true
}

func formatSession(s *workflow.Session) string {
	var b strings.Builder
	b.WriteString("Please check the numbers I read:\n\n")
	for i, m := range s.EditedMetrics {
		v := strings.TrimSpace(m.Value)
		if v == "" {
			v = "(blank, will use " + s.RawMetrics[i].Value + ")"
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, m.Name, v)
		if s.Edited(i) {
			fmt.Fprintf(&b, "  ✏️ was %s", s.RawMetrics[i].Value)
		} else if m.Status != "" {
			fmt.Fprintf(&b, " (%s)", m.Status)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nSend \"N value\" to correct a number, /reset N to restore it, then press Confirm.")
	return b.String()
}

// formatResult splits the final report into the messages the bot sends.
func formatResult(r analysis.AnalysisResult) []string {
	var out []string

	var b strings.Builder
	b.WriteString("📊 " + r.OneLineSummary + "\n\n")
	for _, m := range r.Metrics {
		fmt.Fprintf(&b, "%s %s: %s\n", statusIcon(m.Status), m.Name, m.Value)
	}
	out = append(out, strings.TrimSpace(b.String()))

	if len(r.Interpretation) > 0 {
		b.Reset()
		for _, c := range r.Interpretation {
			fmt.Fprintf(&b, "• %s\n%s\n\n", c.Title, c.Detail)
		}
		out = append(out, strings.TrimSpace(b.String()))
	}

	if sol := formatSolution(r.Solution); sol != "" {
		out = append(out, sol)
	}

	if len(r.Guide4Weeks) > 0 {
		b.Reset()
		b.WriteString("🗓 4-week guide\n")
		for _, w := range r.Guide4Weeks {
			fmt.Fprintf(&b, "\n%s: %s\n", w.Week, w.Focus)
			for _, c := range w.Checkpoints {
				b.WriteString("  - " + c + "\n")
			}
		}
		out = append(out, strings.TrimSpace(b.String()))
	}

	if len(r.CoachScript) > 0 {
		b.Reset()
		b.WriteString("🗣 Coach script\n")
		for i, line := range r.CoachScript {
			fmt.Fprintf(&b, "%d) %s\n", i+1, line)
		}
		out = append(out, strings.TrimSpace(b.String()))
	}

	if r.SMSResult != "" {
		out = append(out, "✉️ Message for the client:\n\n"+r.SMSResult)
	}
	return out
}

func formatSolution(s analysis.Solution) string {
	var b strings.Builder
	if len(s.DailyRoutine) > 0 {
		b.WriteString("🥤 Daily routine\n")
		for _, slot := range s.DailyRoutine {
			b.WriteString(slot.Timing + ":\n")
			for _, it := range slot.Items {
				fmt.Fprintf(&b, "  - %s: %s (%s)\n", it.Product, it.How, it.Why)
			}
		}
	}
	writeCare := func(title string, pts []analysis.CarePoint) {
		if len(pts) == 0 {
			return
		}
		b.WriteString("\n" + title + "\n")
		for _, p := range pts {
			fmt.Fprintf(&b, "  - %s: %s", p.Point, p.Action)
			if p.ProductSuggestion != "" {
				fmt.Fprintf(&b, " [%s]", p.ProductSuggestion)
			}
			b.WriteByte('\n')
		}
	}
	writeCare("🔥 Fat management", s.FatManagement)
	writeCare("💪 Muscle and metabolism", s.MuscleMetabolism)
	if s.ComplianceNote != "" {
		b.WriteString("\n" + s.ComplianceNote + "\n")
	}
	return strings.TrimSpace(b.String())
}

func statusIcon(s analysis.Status) string {
	switch s {
	case analysis.StatusNormal:
		return "🟢"
	case analysis.StatusCaution:
		return "🟡"
	case analysis.StatusNeedsImprovement:
		return "🔴"
	}
	return "⚪️"
}

// chunk splits text into pieces of at most n runes, preferring line breaks.
func chunk(text string, n int) []string {
	rs := []rune(text)
	if len(rs) <= n {
		return []string{text}
	}
	var out []string
	for len(rs) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if rs[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimRight(string(rs[:cut]), "\n"))
		rs = rs[cut:]
	}
	if len(rs) > 0 {
		out = append(out, string(rs))
	}
	return out
}
