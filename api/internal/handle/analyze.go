package handle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/store"
	"bodyscan-coach/api/internal/util"
)

// AnalyzeJSON is the alternative to multipart upload: the image travels as
// base64 or a data URL.
type AnalyzeJSON struct {
	ImageB64 string `json:"image_b64"`
	MIME     string `json:"mime,omitempty"`
	Goal     string `json:"goal"`
	Tone     string `json:"tone"`
	LLM      string `json:"llm,omitempty"`
}

func stripDataURL(b64 string) (data, mediaType string) {
	s := strings.TrimSpace(b64)
	if i := strings.Index(s, ","); i != -1 && strings.HasPrefix(strings.ToLower(s[:i]), "data:") {
		head := s[len("data:"):i]
		if j := strings.Index(head, ";"); j != -1 {
			head = head[:j]
		}
		return s[i+1:], head
	}
	return s, ""
}

func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "POST only"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opt.MaxUploadBytes)

	in, err := h.readAnalyzeInput(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorBody{Error: "upload is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opt.Timeout)
	defer cancel()

	out, err := h.svc.Analyze(ctx, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rep := store.Report{Kind: store.KindAnalysis, Result: out}
	if eng, err := h.svc.Engine(in.LLM); err == nil {
		rep.Engine, rep.Model = eng.Name(), eng.GetModel()
	}
	rep.Goal, rep.Tone, _ = analysis.ResolveOptions(in.Goal, in.Tone)
	rep.ImageHash = util.SHA256Hex(in.Image)
	if id := h.save(r.Context(), rep); id != "" {
		w.Header().Set("X-Report-ID", id)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) readAnalyzeInput(r *http.Request) (analysis.AnalyzeInput, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req AnalyzeJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return analysis.AnalyzeInput{}, wrapBody("bad json", err)
		}
		data, dataMIME := stripDataURL(req.ImageB64)
		var img []byte
		if data != "" {
			var err error
			if img, err = base64.StdEncoding.DecodeString(data); err != nil {
				return analysis.AnalyzeInput{}, errors.New("bad image_b64")
			}
		}
		m := req.MIME
		if m == "" {
			m = dataMIME
		}
		return analysis.AnalyzeInput{
			Image: img,
			MIME:  m,
			Goal:  analysis.Goal(req.Goal),
			Tone:  analysis.Tone(req.Tone),
			LLM:   req.LLM,
		}, nil
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return analysis.AnalyzeInput{}, wrapBody("bad form", err)
	}
	in := analysis.AnalyzeInput{
		Goal: analysis.Goal(r.FormValue("goal")),
		Tone: analysis.Tone(r.FormValue("tone")),
		LLM:  r.FormValue("llm"),
	}
	file, hdr, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		// the service reports the missing image
		return in, nil
	}
	if err != nil {
		return analysis.AnalyzeInput{}, wrapBody("bad image", err)
	}
	defer file.Close()
	if in.Image, err = io.ReadAll(file); err != nil {
		return analysis.AnalyzeInput{}, wrapBody("read image", err)
	}
	in.MIME = hdr.Header.Get("Content-Type")
	return in, nil
}

// wrapBody keeps *http.MaxBytesError reachable for errors.As.
func wrapBody(msg string, err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return err
	}
	return errors.New(msg + ": " + err.Error())
}
