package handle

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/store"

	"github.com/getsentry/sentry-go"
)

// Reports persists results; nil disables storage and GET /api/reports.
type Reports interface {
	Save(ctx context.Context, rep store.Report) (string, error)
	Get(ctx context.Context, id string) (store.Report, error)
}

type Options struct {
	Timeout        time.Duration
	MaxUploadBytes int64
}

type Handle struct {
	svc     *analysis.Service
	reports Reports
	opt     Options
}

func New(svc *analysis.Service, reports Reports, opt Options) *Handle {
	if opt.Timeout <= 0 {
		opt.Timeout = 180 * time.Second
	}
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = 20 << 20
	}
	return &Handle{svc: svc, reports: reports, opt: opt}
}

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error       string `json:"error"`
	RawResponse string `json:"raw_response,omitempty"`
	ParseError  string `json:"parse_error,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps analysis errors to HTTP statuses:
// input 400, upstream 502, format 502, anything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *analysis.Error
	if !errors.As(err, &ae) {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		sentry.CaptureException(err)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal error"})
		return
	}

	body := ErrorBody{
		Error:       ae.Message,
		RawResponse: ae.RawResponse,
		ParseError:  ae.ParseError,
		StatusCode:  ae.StatusCode,
	}
	code := http.StatusBadGateway
	switch ae.Kind {
	case analysis.KindInput:
		code = http.StatusBadRequest
	case analysis.KindUpstream, analysis.KindFormat:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		sentry.CaptureException(err)
	}
	writeJSON(w, code, body)
}

func (h *Handle) save(ctx context.Context, rep store.Report) string {
	if h.reports == nil {
		return ""
	}
	id, err := h.reports.Save(ctx, rep)
	if err != nil {
		log.Printf("save %s report: %v", rep.Kind, err)
		return ""
	}
	return id
}
