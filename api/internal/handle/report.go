package handle

import (
	"errors"
	"net/http"

	"bodyscan-coach/api/internal/store"

	"github.com/gorilla/mux"
)

func (h *Handle) Report(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "report storage is not configured"})
		return
	}
	id := mux.Vars(r)["id"]
	rep, err := h.reports.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "report not found"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
