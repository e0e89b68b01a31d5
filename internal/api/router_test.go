package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maconsulting/parcours/internal/diagnostic"
	"github.com/maconsulting/parcours/internal/middleware"
	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/services"
)

type testServer struct {
	*httptest.Server
	rt    *Router
	store *MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	q, err := diagnostic.Default()
	require.NoError(t, err)
	store := NewMemoryStore()
	rt := NewRouter(store, middleware.NewSigner("test-secret"), q, WithStaffKey("staff"))
	mux := http.NewServeMux()
	rt.Register(mux)
	srv := httptest.NewServer(middleware.LocaleMiddleware(mux))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, rt: rt, store: store}
}

func (s *testServer) call(t *testing.T, method, path string, body any, header http.Header) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	for k, vs := range header {
		req.Header[k] = vs
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decodeData[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var env models.Envelope[T]
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return env.Data
}

func runRequest(email string) models.DiagnosticRunRequest {
	var rs []models.DiagnosticResponse
	for _, id := range []string{"mgt-vision", "mgt-communication", "mgt-organisation", "mgt-resilience"} {
		rs = append(rs, models.DiagnosticResponse{QuestionID: id, RawValue: 4})
	}
	return models.DiagnosticRunRequest{
		Participant: models.DiagnosticParticipant{Email: email},
		Responses:   rs,
		Metadata:    map[string]string{"domain": "management"},
	}
}

func TestDiagnosticLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.call(t, http.MethodGet, "/api/diagnostic-sessions/eligibility?email=Lea@Test.fr", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.Eligibility{AllowNew: true, Reason: models.ReasonNew, BlockedBy: models.BlockedByNone},
		decodeData[models.Eligibility](t, raw))

	status, raw = s.call(t, http.MethodPost, "/api/diagnostic-sessions", runRequest("lea@test.fr"), nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	res := decodeData[models.DiagnosticResult](t, raw)
	assert.Equal(t, 14, res.Total)
	assert.Equal(t, "developpement", res.Orientation)
	assert.Equal(t, models.StatusPending, res.Status)

	status, raw = s.call(t, http.MethodGet, "/api/diagnostic-sessions/eligibility?email=lea@test.fr", nil, nil)
	require.Equal(t, http.StatusOK, status)
	elig := decodeData[models.Eligibility](t, raw)
	assert.False(t, elig.AllowNew)
	assert.Equal(t, models.ReasonPending, elig.Reason)

	status, _ = s.call(t, http.MethodPost, "/api/diagnostic-sessions", runRequest("lea@test.fr"), nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.call(t, http.MethodPut, "/api/diagnostic-sessions/"+res.ID+"/status",
		map[string]string{"status": "done"}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, raw = s.call(t, http.MethodPut, "/api/diagnostic-sessions/"+res.ID+"/status",
		map[string]string{"status": "done"}, http.Header{"X-Staff-Key": {"staff"}})
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = s.call(t, http.MethodGet, "/api/diagnostic-sessions/public-subscription?email=lea@test.fr", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[models.Subscription](t, raw).Active)

	status, raw = s.call(t, http.MethodGet, "/api/diagnostic-sessions/public-result?email=lea@test.fr", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusDone, decodeData[models.DiagnosticResult](t, raw).Status)

	assert.NotEmpty(t, s.store.ListAudit())
}

func TestStaffAnalyticsAndExport(t *testing.T) {
	s := newTestServer(t)
	staff := http.Header{"X-Staff-Key": {"staff"}}
	for _, email := range []string{"a@test.fr", "b@test.fr"} {
		status, raw := s.call(t, http.MethodPost, "/api/diagnostic-sessions", runRequest(email), nil)
		require.Equal(t, http.StatusCreated, status, string(raw))
	}

	status, _ := s.call(t, http.MethodGet, "/api/diagnostic-sessions/analytics?domain=management", nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, raw := s.call(t, http.MethodGet, "/api/diagnostic-sessions/analytics?domain=management", nil, staff)
	require.Equal(t, http.StatusOK, status, string(raw))
	summary := decodeData[services.DomainAnalytics](t, raw)
	assert.Equal(t, 2, summary.Runs)
	assert.Equal(t, 2, summary.N)
	assert.InDelta(t, 14, summary.MeanTotal, 0.001)
	assert.Equal(t, 2, summary.Orientations["developpement"])

	status, _ = s.call(t, http.MethodGet, "/api/diagnostic-sessions/analytics?domain=astro", nil, staff)
	assert.Equal(t, http.StatusNotFound, status)

	status, raw = s.call(t, http.MethodGet, "/api/diagnostic-sessions/export?domain=management&format=wide", nil, staff)
	require.Equal(t, http.StatusOK, status, string(raw))
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "run_id,email,status,total"))

	status, _ = s.call(t, http.MethodGet, "/api/diagnostic-sessions/export?format=pdf", nil, staff)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestErrorsAreJSON(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.call(t, http.MethodGet, "/api/diagnostic-sessions/public-result?email=nobody@test.fr", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	var body models.ErrorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "not_found", body.Code)

	status, raw = s.call(t, http.MethodGet, "/api/diagnostic-sessions/eligibility?email=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status, string(raw))

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/commercial-deals", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Accept-Language", "en")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Message)

	status, _ = s.call(t, http.MethodPatch, "/api/commercial-deals", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestQuestProgressRevision(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rt.Quest().GrantAccess("player@test.fr", "1234"))

	status, _ := s.call(t, http.MethodPost, "/api/career-quest/login",
		models.QuestLoginRequest{Email: "player@test.fr", Code: "0000"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := s.call(t, http.MethodPost, "/api/career-quest/login",
		models.QuestLoginRequest{Email: "Player@test.fr", Code: "1234"}, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	sess := decodeData[models.QuestSession](t, raw)
	auth := http.Header{}
	auth.Set(models.HeaderQuestSessionID, sess.SessionID)
	auth.Set(models.HeaderQuestToken, sess.Token)

	status, _ = s.call(t, http.MethodGet, "/api/career-quest/progress", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw = s.call(t, http.MethodGet, "/api/career-quest/progress", nil, auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, decodeData[models.QuestSnapshot](t, raw).Revision)

	doc := json.RawMessage(`{"level":1,"xp":10,"updatedAt":"2026-03-01T10:00:00Z"}`)
	status, raw = s.call(t, http.MethodPut, "/api/career-quest/progress",
		models.QuestPutRequest{Progress: doc, Revision: 0}, auth)
	require.Equal(t, http.StatusOK, status, string(raw))
	snap := decodeData[models.QuestSnapshot](t, raw)
	assert.Equal(t, 1, snap.Revision)
	assert.Equal(t, "2026-03-01T10:00:00Z", snap.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))

	status, raw = s.call(t, http.MethodPut, "/api/career-quest/progress",
		models.QuestPutRequest{Progress: json.RawMessage(`{"level":2}`), Revision: 0}, auth)
	require.Equal(t, http.StatusConflict, status)
	var conflict models.QuestSnapshot
	require.NoError(t, json.Unmarshal(raw, &conflict))
	assert.Equal(t, 1, conflict.Revision)
	assert.JSONEq(t, string(doc), string(conflict.Progress))
}

func TestQuestProofAndCoach(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.rt.Quest().GrantAccess("player@test.fr", "1234"))
	_, raw := s.call(t, http.MethodPost, "/api/career-quest/login",
		models.QuestLoginRequest{Email: "player@test.fr", Code: "1234"}, nil)
	sess := decodeData[models.QuestSession](t, raw)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("taskId", "p0-avatar"))
	require.NoError(t, mw.WriteField("objective", "Avatar visible"))
	part, err := mw.CreateFormFile("screenshot", "avatar.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{1}, 25*1024))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/career-quest/proof-score-screenshot", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(models.HeaderQuestSessionID, sess.SessionID)
	req.Header.Set(models.HeaderQuestToken, sess.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env models.Envelope[models.ProofScore]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, 95, env.Data.Score)
	assert.Equal(t, "Excellent", env.Data.Label)

	auth := http.Header{}
	auth.Set(models.HeaderQuestSessionID, sess.SessionID)
	auth.Set(models.HeaderQuestToken, sess.Token)
	status, raw := s.call(t, http.MethodPost, "/api/career-quest/coach",
		models.CoachRequest{Question: "Comment avancer ?", Level: 2, TaskID: "p0-avatar"}, auth)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, decodeData[models.CoachReply](t, raw).Answer, "p0-avatar")
}

func TestDealsCRUD(t *testing.T) {
	s := newTestServer(t)
	in := models.DealInput{PartnerEmail: "partner@test.fr", Company: "Acme", Amount: 10000, CommissionRate: 10}

	status, raw := s.call(t, http.MethodPost, "/api/commercial-deals", in, nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	deal := decodeData[models.Deal](t, raw)
	assert.Equal(t, models.DealProspect, deal.Status)

	in.Company = "Globex"
	_, _ = s.call(t, http.MethodPost, "/api/commercial-deals", in, nil)

	status, raw = s.call(t, http.MethodGet, "/api/commercial-deals?partner=partner@test.fr&q=acme", nil, nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeData[models.DealList](t, raw)
	require.Len(t, list.Items, 1)
	assert.Equal(t, models.Page{Page: 1, Limit: 20, Total: 1}, list.Page)

	other := models.DealInput{PartnerEmail: "intruder@test.fr", Company: "Acme", Status: models.DealWon}
	status, _ = s.call(t, http.MethodPut, "/api/commercial-deals/"+deal.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, status)

	upd := models.DealInput{PartnerEmail: "partner@test.fr", Company: "Acme", Amount: 12000, CommissionRate: 10, Status: models.DealWon}
	status, raw = s.call(t, http.MethodPut, "/api/commercial-deals/"+deal.ID, upd, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, models.DealWon, decodeData[models.Deal](t, raw).Status)

	status, _ = s.call(t, http.MethodDelete, "/api/commercial-deals/"+deal.ID+"?partner=partner@test.fr", nil, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.call(t, http.MethodDelete, "/api/commercial-deals/"+deal.ID+"?partner=partner@test.fr", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestService1Routes(t *testing.T) {
	s := newTestServer(t)
	body := models.Service1Request{Email: "lea@test.fr"}

	status, raw := s.call(t, http.MethodGet, "/api/diagnostic-sessions/service1/phase0/state?email=lea@test.fr", nil, nil)
	require.Equal(t, http.StatusOK, status)
	states := decodeData[map[string]json.RawMessage](t, raw)
	require.Contains(t, states, "phase0")

	status, raw = s.call(t, http.MethodPost, "/api/diagnostic-sessions/service1/phase0/compute", body, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	p0 := decodeData[map[string]models.Phase0State](t, raw)["phase0"]
	assert.Equal(t, "awaiting_cv", p0.Status)

	status, _ = s.call(t, http.MethodPost, "/api/diagnostic-sessions/service1/phase0/interview/start", body, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("email", "lea@test.fr"))
	part, err := mw.CreateFormFile("cv", "cv.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Consultante Marketing Stratégie Management Leadership"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	resp, err := http.Post(s.URL+"/api/diagnostic-sessions/service1/phase0/analyze-cv", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env models.Envelope[map[string]models.Phase0State]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.NotNil(t, env.Data["phase0"].CV)

	status, raw = s.call(t, http.MethodPost, "/api/diagnostic-sessions/service1/phase0/interview/start", body, nil)
	require.Equal(t, http.StatusOK, status, string(raw))

	status, _ = s.call(t, http.MethodPost, "/api/diagnostic-sessions/service1/phase9/compute", body, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.call(t, http.MethodPost, "/api/diagnostic-sessions/service1/phase1/explode", body, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.call(t, http.MethodGet, "/api/diagnostic-sessions/service1/final?email=lea@test.fr", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
