package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/prompt"
	"bodyscan-coach/api/internal/store"

	"github.com/gorilla/mux"
)

const goodJSON = "```json\n" + `{
  "one_line_summary": "Muscle is a little low.",
  "metrics": [
    {"name": "weight", "value": "65.3kg", "status": "정상"},
    {"name": "BMI", "value": "23.4", "status": "normal"}
  ],
  "interpretation": [{"title": "a", "detail": "b"}],
  "solution": {"daily_routine": [], "fat_management": [], "muscle_metabolism": []},
  "coach_script": ["hi"],
  "sms_result": "Great work!"
}` + "\n```"

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}

type fakeEngine struct {
	content string
	err     error
	calls   int
	last    analysis.Request
}

func (f *fakeEngine) Name() string     { return "gpt" }
func (f *fakeEngine) GetModel() string { return "gpt-4o" }
func (f *fakeEngine) Complete(_ context.Context, req analysis.Request) (string, error) {
	f.calls++
	f.last = req
	return f.content, f.err
}

type memReports struct {
	mu   sync.Mutex
	rows map[string]store.Report
	n    int
}

func (m *memReports) Save(_ context.Context, rep store.Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string]store.Report{}
	}
	m.n++
	rep.ID = "r" + string(rune('0'+m.n))
	m.rows[rep.ID] = rep
	return rep.ID, nil
}

func (m *memReports) Get(_ context.Context, id string) (store.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.rows[id]
	if !ok {
		return store.Report{}, store.ErrNotFound
	}
	return rep, nil
}

func newHandle(t *testing.T, eng *fakeEngine, reports Reports) *Handle {
	t.Helper()
	ps, err := prompt.Load("")
	if err != nil {
		t.Fatal(err)
	}
	svc := analysis.NewService(&analysis.Engines{OpenAI: eng, Default: "gpt"}, ps, analysis.Options{})
	return New(svc, reports, Options{MaxUploadBytes: 1 << 20})
}

func multipartRequest(t *testing.T, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if image != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="scan.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(image)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

// #region analyze
func TestAnalyze_Multipart(t *testing.T) {
	eng := &fakeEngine{content: goodJSON}
	reports := &memReports{}
	h := newHandle(t, eng, reports)

	rec := httptest.NewRecorder()
	h.Analyze(rec, multipartRequest(t, pngBytes, map[string]string{"goal": "fat-priority", "tone": "concise"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var out analysis.AnalysisResult
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Metrics[0].Status != analysis.StatusNormal {
		t.Fatalf("status synonym not normalized: %q", out.Metrics[0].Status)
	}
	if eng.last.ImageMIME != "image/png" {
		t.Fatalf("mime = %q", eng.last.ImageMIME)
	}

	id := rec.Header().Get("X-Report-ID")
	rep, err := reports.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("report %q not stored: %v", id, err)
	}
	if rep.Kind != store.KindAnalysis || rep.Goal != analysis.GoalFatPriority || rep.Engine != "gpt" || len(rep.ImageHash) != 64 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestAnalyze_JSONDataURL(t *testing.T) {
	eng := &fakeEngine{content: goodJSON}
	h := newHandle(t, eng, nil)

	body, _ := json.Marshal(AnalyzeJSON{
		ImageB64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
		Goal:     "balanced",
		Tone:     "gentle",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Report-ID") != "" {
		t.Fatal("no report id expected without storage")
	}
	if !bytes.Equal(eng.last.Image, pngBytes) {
		t.Fatal("image not decoded")
	}
}

func TestAnalyze_NoImage(t *testing.T) {
	eng := &fakeEngine{content: goodJSON}
	h := newHandle(t, eng, nil)

	rec := httptest.NewRecorder()
	h.Analyze(rec, multipartRequest(t, nil, map[string]string{"goal": "balanced"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "no image" {
		t.Fatalf("error = %q", body.Error)
	}
	if eng.calls != 0 {
		t.Fatal("upstream must not be called")
	}
}

func TestAnalyze_UpstreamError(t *testing.T) {
	eng := &fakeEngine{err: analysis.UpstreamError(500, errors.New("internal"))}
	h := newHandle(t, eng, nil)

	rec := httptest.NewRecorder()
	h.Analyze(rec, multipartRequest(t, pngBytes, nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.StatusCode != 500 || !strings.Contains(body.Error, "500") {
		t.Fatalf("body = %+v", body)
	}
}

func TestAnalyze_FormatError(t *testing.T) {
	eng := &fakeEngine{content: "Sorry, the sheet is too blurry."}
	h := newHandle(t, eng, nil)

	rec := httptest.NewRecorder()
	h.Analyze(rec, multipartRequest(t, pngBytes, nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeError(t, rec)
	if !strings.Contains(body.Error, "no JSON found") || body.RawResponse != "Sorry, the sheet is too blurry." {
		t.Fatalf("body = %+v", body)
	}
}

func TestAnalyze_TooLarge(t *testing.T) {
	eng := &fakeEngine{content: goodJSON}
	h := newHandle(t, eng, nil)
	h.opt.MaxUploadBytes = 64

	body, _ := json.Marshal(AnalyzeJSON{ImageB64: strings.Repeat("A", 256)})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	h := newHandle(t, &fakeEngine{}, nil)
	rec := httptest.NewRecorder()
	h.Analyze(rec, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

// #endregion analyze

// #region reanalyze
func TestReanalyze(t *testing.T) {
	eng := &fakeEngine{content: goodJSON}
	reports := &memReports{}
	h := newHandle(t, eng, reports)

	body := `{
		"metrics": [{"name": "weight", "value": "64.0kg", "status": "normal"}, {"name": "BMI", "value": "", "status": "normal"}],
		"goal": "muscle-priority",
		"tone": "professional",
		"original_summary": "Muscle is a little low.",
		"parent_id": "r0"
	}`
	rec := httptest.NewRecorder()
	h.Reanalyze(rec, httptest.NewRequest(http.MethodPost, "/api/reanalyze", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var out analysis.AnalysisResult
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if out.Metrics[0].Value != "64.0kg" {
		t.Fatalf("corrected value lost: %+v", out.Metrics)
	}
	if eng.last.Image != nil || !strings.Contains(eng.last.User, "Muscle is a little low.") {
		t.Fatalf("unexpected request: %+v", eng.last)
	}
	rep, err := reports.Get(context.Background(), rec.Header().Get("X-Report-ID"))
	if err != nil || rep.Kind != store.KindReanalysis || rep.ParentID != "r0" || rep.Tone != analysis.ToneProfessional {
		t.Fatalf("report = %+v err = %v", rep, err)
	}
}

func TestReanalyze_BadInput(t *testing.T) {
	h := newHandle(t, &fakeEngine{}, nil)

	cases := map[string]string{
		"not json":   `{"metrics": [`,
		"no metrics": `{"metrics": [], "goal": "balanced", "tone": "gentle"}`,
		"bad goal":   `{"metrics": [{"name": "BMI", "value": "22"}], "goal": "bulk"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Reanalyze(rec, httptest.NewRequest(http.MethodPost, "/api/reanalyze", strings.NewReader(body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
		})
	}
}

// #endregion reanalyze

// #region report
func TestReport(t *testing.T) {
	reports := &memReports{}
	id, _ := reports.Save(context.Background(), store.Report{Kind: store.KindAnalysis, Engine: "gpt"})
	h := newHandle(t, &fakeEngine{}, reports)

	get := func(id string) *httptest.ResponseRecorder {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/reports/"+id, nil), map[string]string{"id": id})
		rec := httptest.NewRecorder()
		h.Report(rec, req)
		return rec
	}

	if rec := get(id); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := get("missing"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: status = %d", rec.Code)
	}
}

func TestReport_StorageDisabled(t *testing.T) {
	h := newHandle(t, &fakeEngine{}, nil)
	rec := httptest.NewRecorder()
	h.Report(rec, httptest.NewRequest(http.MethodGet, "/api/reports/x", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

// #endregion report

func TestStripDataURL(t *testing.T) {
	data, mt := stripDataURL(" data:image/webp;base64,AAAA ")
	if data != "AAAA" || mt != "image/webp" {
		t.Fatalf("got %q %q", data, mt)
	}
	data, mt = stripDataURL("AAAA")
	if data != "AAAA" || mt != "" {
		t.Fatalf("got %q %q", data, mt)
	}
}
