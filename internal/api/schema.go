package api

import (
	"net/http"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Introspector == nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTROSPECTOR_UNAVAILABLE", "schema introspector is not configured", false, nil)
		return
	}
	snapshot, err := deps.Introspector.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTROSPECTION_FAILED", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":   snapshot.Tables,
		"rendered": snapshot.Render(),
	})
}
