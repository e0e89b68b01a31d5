package api

import (
	"net/http"
	"strconv"

	"github.com/maconsulting/parcours/internal/models"
)

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// GET /api/commercial-deals?partner=&page=&limit=&status=&q=
func (rt *Router) handleListDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := rt.deals.List(q.Get("partner"), models.DealStatus(q.Get("status")), q.Get("q"),
		atoiOr(q.Get("page"), 1), atoiOr(q.Get("limit"), 0))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// POST /api/commercial-deals
func (rt *Router) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var in models.DealInput
	if !decodeJSON(w, r, &in) {
		return
	}
	d, err := rt.deals.Create(in)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, d)
}

// PUT /api/commercial-deals/{id}
func (rt *Router) handleUpdateDeal(w http.ResponseWriter, r *http.Request) {
	var in models.DealInput
	if !decodeJSON(w, r, &in) {
		return
	}
	d, err := rt.deals.Update(r.PathValue("id"), in)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

// DELETE /api/commercial-deals/{id}?partner=
func (rt *Router) handleDeleteDeal(w http.ResponseWriter, r *http.Request) {
	if err := rt.deals.Delete(r.PathValue("id"), r.URL.Query().Get("partner")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
