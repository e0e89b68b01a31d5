package careerquest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/models"
)

// Remote is the server copy of the progress document.
type Remote interface {
	Fetch(ctx context.Context) (models.QuestSnapshot, error)
	// Push stores progress if revision is still current. A stale revision
	// fails with a *ConflictError carrying the server copy.
	Push(ctx context.Context, progress json.RawMessage, revision int) (models.QuestSnapshot, error)
}

// ConflictError is a 409 from the progress endpoint.
type ConflictError struct {
	Snapshot models.QuestSnapshot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("progress conflict: server at revision %d", e.Snapshot.Revision)
}

type httpRemote struct {
	client  *apiclient.Client
	session models.QuestSession
}

// NewRemote binds the progress endpoints to a logged-in session.
func NewRemote(client *apiclient.Client, session models.QuestSession) Remote {
	return &httpRemote{client: client, session: session}
}

func sessionHeader(s models.QuestSession) http.Header {
	h := http.Header{}
	h.Set(models.HeaderQuestSessionID, s.SessionID)
	h.Set(models.HeaderQuestToken, s.Token)
	return h
}

func (r *httpRemote) Fetch(ctx context.Context) (models.QuestSnapshot, error) {
	return apiclient.Get[models.QuestSnapshot](ctx, r.client, "/career-quest/progress", nil, sessionHeader(r.session))
}

func (r *httpRemote) Push(ctx context.Context, progress json.RawMessage, revision int) (models.QuestSnapshot, error) {
	body := models.QuestPutRequest{Progress: progress, Revision: revision}
	snap, err := apiclient.Send[models.QuestSnapshot](ctx, r.client, http.MethodPut, "/career-quest/progress", body, sessionHeader(r.session))
	if he, ok := apiclient.IsConflict(err); ok {
		var server models.QuestSnapshot
		if jerr := json.Unmarshal(he.Body, &server); jerr != nil {
			return models.QuestSnapshot{}, &apiclient.NetworkError{Op: "decode conflict", Err: jerr}
		}
		return models.QuestSnapshot{}, &ConflictError{Snapshot: server}
	}
	return snap, err
}
