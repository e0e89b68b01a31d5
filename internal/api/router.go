// Package api exposes the parcours backend over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/diagnostic"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/middleware"
	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/services"
	"github.com/maconsulting/parcours/internal/utils"
)

// maxUpload bounds multipart bodies (CVs and proof screenshots).
const maxUpload = 10 << 20

type Router struct {
	store    Store
	signer   *middleware.Signer
	staffKey string
	log      *zap.Logger

	diag      *services.DiagnosticService
	analytics *services.AnalyticsService
	quest     *services.QuestService
	deals     *services.DealService
	service1  *services.Service1Service
}

type Option func(*Router)

// WithStaffKey enables the staff-only routes, guarded by X-Staff-Key.
func WithStaffKey(key string) Option { return func(rt *Router) { rt.staffKey = key } }

func WithLogger(l *zap.Logger) Option { return func(rt *Router) { rt.log = logging.OrNop(l) } }

func NewRouter(store Store, signer *middleware.Signer, q *diagnostic.Questionnaire, opts ...Option) *Router {
	rt := &Router{
		store:     store,
		signer:    signer,
		log:       zap.NewNop(),
		diag:      services.NewDiagnosticService(store, q),
		analytics: services.NewAnalyticsService(store, q),
		quest:     services.NewQuestService(store, signer.SignQuestToken),
		deals:     services.NewDealService(store),
		service1:  services.NewService1Service(store),
	}
	for _, o := range opts {
		o(rt)
	}
	return rt
}

// Quest exposes the Career Quest service, used to seed access codes.
func (rt *Router) Quest() *services.QuestService { return rt.quest }

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/diagnostic-sessions/eligibility", rt.handleEligibility)
	mux.HandleFunc("POST /api/diagnostic-sessions", rt.handleCreateDiagnostic)
	mux.HandleFunc("GET /api/diagnostic-sessions/public-result", rt.handlePublicResult)
	mux.HandleFunc("GET /api/diagnostic-sessions/public-subscription", rt.handlePublicSubscription)
	mux.Handle("PUT /api/diagnostic-sessions/{id}/status",
		middleware.RequireStaffKey(rt.staffKey)(http.HandlerFunc(rt.handleSetStatus)))
	mux.Handle("GET /api/diagnostic-sessions/analytics",
		middleware.RequireStaffKey(rt.staffKey)(http.HandlerFunc(rt.handleAnalytics)))
	mux.Handle("GET /api/diagnostic-sessions/export",
		middleware.RequireStaffKey(rt.staffKey)(http.HandlerFunc(rt.handleExport)))

	mux.HandleFunc("GET /api/diagnostic-sessions/service1/final", rt.handleService1Final)
	mux.HandleFunc("GET /api/diagnostic-sessions/service1/{phase}/state", rt.handleService1State)
	mux.HandleFunc("POST /api/diagnostic-sessions/service1/{phase}/{action...}", rt.handleService1Action)

	auth := rt.signer.RequireQuestSession(rt.quest.Session)
	mux.HandleFunc("POST /api/career-quest/login", rt.handleQuestLogin)
	mux.Handle("GET /api/career-quest/progress", auth(http.HandlerFunc(rt.handleGetProgress)))
	mux.Handle("PUT /api/career-quest/progress", auth(http.HandlerFunc(rt.handlePutProgress)))
	mux.Handle("POST /api/career-quest/proof-score-screenshot", auth(http.HandlerFunc(rt.handleProofScore)))
	mux.Handle("POST /api/career-quest/coach", auth(http.HandlerFunc(rt.handleCoach)))

	mux.HandleFunc("GET /api/commercial-deals", rt.handleListDeals)
	mux.HandleFunc("POST /api/commercial-deals", rt.handleCreateDeal)
	mux.HandleFunc("PUT /api/commercial-deals/{id}", rt.handleUpdateDeal)
	mux.HandleFunc("DELETE /api/commercial-deals/{id}", rt.handleDeleteDeal)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the {data: ...} envelope.
func writeData[T any](w http.ResponseWriter, status int, v T) {
	writeJSON(w, status, models.Envelope[T]{Data: v})
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError maps service errors to their status. Anything else is logged
// and reported as a localized 500.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := services.AsServiceError(err); ok {
		writeJSON(w, statusFor(se.Code), models.ErrorBody{Message: se.Message, Code: string(se.Code)})
		return
	}
	rt.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	msg := utils.T(middleware.LocaleFromContext(r.Context()), "server.internal_error")
	writeJSON(w, http.StatusInternalServerError, models.ErrorBody{Message: msg})
}

func badRequest(w http.ResponseWriter, r *http.Request, key string) {
	msg := utils.T(middleware.LocaleFromContext(r.Context()), key)
	writeJSON(w, http.StatusBadRequest, models.ErrorBody{Message: msg, Code: string(services.ErrorInvalid)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, r, "request.invalid_json")
		return false
	}
	return true
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func questEmail(r *http.Request) (string, error) {
	email, ok := middleware.QuestEmailFromContext(r.Context())
	if !ok {
		return "", errors.New("quest session missing from context")
	}
	return email, nil
}
