package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/services"
)

// GET /api/diagnostic-sessions/service1/{phase}/state?email=
func (rt *Router) handleService1State(w http.ResponseWriter, r *http.Request) {
	phase := r.PathValue("phase")
	st, err := rt.service1.State(r.URL.Query().Get("email"), phase)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{phase: st})
}

// POST /api/diagnostic-sessions/service1/{phase}/{action...}
//
// JSON bodies carry a Service1Request. analyze-cv is multipart with an email
// field and a "cv" file.
func (rt *Router) handleService1Action(w http.ResponseWriter, r *http.Request) {
	phase, action := r.PathValue("phase"), r.PathValue("action")
	var (
		req models.Service1Request
		up  *services.Upload
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var err error
		req, up, err = readCVUpload(w, r)
		if err != nil {
			badRequest(w, r, "request.invalid_json")
			return
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}
	st, err := rt.service1.Act(req.Email, phase, action, req, up)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{phase: st})
}

func readCVUpload(w http.ResponseWriter, r *http.Request) (models.Service1Request, *services.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return models.Service1Request{}, nil, err
	}
	req := models.Service1Request{Email: r.FormValue("email")}
	f, hdr, err := r.FormFile("cv")
	if err != nil {
		// The service reports the missing CV.
		return req, nil, nil
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return req, nil, err
	}
	return req, &services.Upload{FileName: hdr.Filename, Content: content}, nil
}

// GET /api/diagnostic-sessions/service1/final?email=
func (rt *Router) handleService1Final(w http.ResponseWriter, r *http.Request) {
	fs, err := rt.service1.Final(r.URL.Query().Get("email"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, fs)
}
