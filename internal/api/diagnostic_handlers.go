package api

import (
	"net/http"

	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/services"
)

// GET /api/diagnostic-sessions/eligibility?email=
func (rt *Router) handleEligibility(w http.ResponseWriter, r *http.Request) {
	elig, err := rt.diag.Eligibility(r.URL.Query().Get("email"), clientIP(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, elig)
}

// POST /api/diagnostic-sessions
func (rt *Router) handleCreateDiagnostic(w http.ResponseWriter, r *http.Request) {
	var req models.DiagnosticRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	run, err := rt.diag.Create(req, clientIP(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, run.Result())
}

// GET /api/diagnostic-sessions/public-result?email=
func (rt *Router) handlePublicResult(w http.ResponseWriter, r *http.Request) {
	run, err := rt.diag.PublicResult(r.URL.Query().Get("email"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, run.Result())
}

// GET /api/diagnostic-sessions/public-subscription?email=
func (rt *Router) handlePublicSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := rt.diag.PublicSubscription(r.URL.Query().Get("email"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

// PUT /api/diagnostic-sessions/{id}/status {status}
func (rt *Router) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.SessionStatus `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	run, err := rt.diag.SetStatus(r.PathValue("id"), body.Status)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, run.Result())
}

// GET /api/diagnostic-sessions/analytics?domain=
func (rt *Router) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.analytics.Summary(r.URL.Query().Get("domain"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

// GET /api/diagnostic-sessions/export?domain=&format=long|wide
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := rt.analytics.ExportCSV(services.ExportParams{
		Domain: q.Get("domain"),
		Format: q.Get("format"),
		Actor:  "staff:" + clientIP(r),
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}
