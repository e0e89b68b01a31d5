package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/services"
)

// POST /api/career-quest/login {email, code}
func (rt *Router) handleQuestLogin(w http.ResponseWriter, r *http.Request) {
	var req models.QuestLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := rt.quest.Login(req.Email, req.Code)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

// GET /api/career-quest/progress
func (rt *Router) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	email, err := questEmail(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	snap, err := rt.quest.GetProgress(email)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// PUT /api/career-quest/progress {progress, revision}
//
// A stale revision answers 409 with the stored snapshot at the top level.
func (rt *Router) handlePutProgress(w http.ResponseWriter, r *http.Request) {
	email, err := questEmail(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req models.QuestPutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	snap, err := rt.quest.PutProgress(email, req)
	var conflict *services.ProgressConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, struct {
			Message string `json:"message"`
			models.QuestSnapshot
		}{Message: conflict.Error(), QuestSnapshot: conflict.Snapshot})
		return
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// POST /api/career-quest/proof-score-screenshot (multipart)
func (rt *Router) handleProofScore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		badRequest(w, r, "request.invalid_json")
		return
	}
	in := services.ProofInput{
		TaskID:    r.FormValue("taskId"),
		TaskTitle: r.FormValue("taskTitle"),
		Objective: r.FormValue("objective"),
	}
	if f, hdr, err := r.FormFile("screenshot"); err == nil {
		n, _ := io.Copy(io.Discard, f)
		f.Close()
		in.FileName, in.Size = hdr.Filename, int(n)
	}
	score, err := rt.quest.ScoreProof(in)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, score)
}

// POST /api/career-quest/coach {question, level, taskId}
func (rt *Router) handleCoach(w http.ResponseWriter, r *http.Request) {
	var req models.CoachRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := rt.quest.Coach(req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, reply)
}
