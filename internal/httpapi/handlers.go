package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agrobridge/internal/rollback"
	"agrobridge/pkg/subsystem"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Health(r.Context()))
}

func (h *Handler) progress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Progress())
}

func (h *Handler) summary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Summary())
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := subsystemParam(w, r)
	if !ok {
		return
	}
	ops := make([]rollback.Operation, 0)
	for _, op := range h.ctrl.RollbackHistory() {
		if op.Subsystem == id {
			ops = append(ops, op)
		}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (h *Handler) migrate(w http.ResponseWriter, r *http.Request) {
	id, ok := subsystemParam(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	res := h.ctrl.MigrateSystem(r.Context(), id, force)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (h *Handler) migrateAll(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	batch := h.ctrl.MigrateAll(r.Context(), force)
	status := http.StatusOK
	if !batch.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, batch)
}

func (h *Handler) rollbackSystem(w http.ResponseWriter, r *http.Request) {
	id, ok := subsystemParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.RollbackSystem(r.Context(), id))
}

func (h *Handler) restoreSystem(w http.ResponseWriter, r *http.Request) {
	id, ok := subsystemParam(w, r)
	if !ok {
		return
	}
	res := h.ctrl.RestoreSystem(r.Context(), id)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func subsystemParam(w http.ResponseWriter, r *http.Request) (subsystem.ID, bool) {
	id := subsystem.ID(chi.URLParam(r, "subsystem"))
	if !id.Valid() {
		writeError(w, http.StatusNotFound, "unknown subsystem "+string(id))
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
