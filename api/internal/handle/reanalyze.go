package handle

import (
	"context"
	"encoding/json"
	"net/http"

	"bodyscan-coach/api/internal/analysis"
	"bodyscan-coach/api/internal/store"
)

type ReanalyzeRequest struct {
	analysis.ReanalyzeInput
	// ParentID links the stored re-analysis to the first-pass report.
	ParentID string `json:"parent_id,omitempty"`
}

func (h *Handle) Reanalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "POST only"})
		return
	}
	var req ReanalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "bad json: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opt.Timeout)
	defer cancel()

	out, err := h.svc.Reanalyze(ctx, req.ReanalyzeInput)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rep := store.Report{Kind: store.KindReanalysis, ParentID: req.ParentID, Result: out}
	if eng, err := h.svc.Engine(req.LLM); err == nil {
		rep.Engine, rep.Model = eng.Name(), eng.GetModel()
	}
	rep.Goal, rep.Tone, _ = analysis.ResolveOptions(req.Goal, req.Tone)
	if id := h.save(r.Context(), rep); id != "" {
		w.Header().Set("X-Report-ID", id)
	}
	writeJSON(w, http.StatusOK, out)
}
