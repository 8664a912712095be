package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/comigor/concierge-go/internal/logger"
	"github.com/comigor/concierge-go/internal/survey"
	"github.com/comigor/concierge-go/pkg/httputil"
)

const maxSurveyBody = 4 << 20

type surveyHandler struct {
	surveys *survey.Service
}

func (h *surveyHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSurveyBody))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Payload must be JSON.")
		return
	}

	registered, err := h.surveys.Register(r.Context(), payload)
	if errors.Is(err, survey.ErrInvalid) {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to register survey", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Unable to register survey.")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, registered)
}

func (h *surveyHandler) handleForm(w http.ResponseWriter, r *http.Request) {
	id, ok := survey.ParseID(r.URL.Query().Get("sid"))
	if !ok {
		http.Error(w, "missing sid", http.StatusBadRequest)
		return
	}
	s, err := h.surveys.Load(r.Context(), id)
	if errors.Is(err, survey.ErrNotFound) {
		http.Error(w, survey.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to load survey", "survey_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var page bytes.Buffer
	if err := survey.RenderForm(&page, s); err != nil {
		logger.FromContext(r.Context()).Error("failed to render survey form", "survey_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = page.WriteTo(w)
}

func (h *surveyHandler) handleLoad(w http.ResponseWriter, r *http.Request) {
	id, ok := survey.ParseID(r.URL.Query().Get("sid"))
	if !ok {
		httputil.RespondError(w, http.StatusBadRequest, "missing sid")
		return
	}
	s, err := h.surveys.Load(r.Context(), id)
	if errors.Is(err, survey.ErrNotFound) {
		httputil.RespondError(w, http.StatusNotFound, survey.ErrNotFound.Error())
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to load survey", "survey_id", id, "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Unable to load survey.")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, s)
}

type submitResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *surveyHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var (
		sub survey.Submission
		err error
	)
	if isJSON(r) {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSurveyBody))
		dec.UseNumber()
		var payload map[string]any
		if derr := dec.Decode(&payload); derr != nil {
			httputil.RespondJSON(w, http.StatusBadRequest, submitResult{Error: "Payload must be JSON."})
			return
		}
		sub, err = survey.ParseSubmission(payload)
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxSurveyBody)
		if perr := r.ParseForm(); perr != nil {
			httputil.RespondJSON(w, http.StatusBadRequest, submitResult{Error: "invalid form body"})
			return
		}
		sub, err = survey.ParseFormSubmission(r.PostForm)
	}
	if err == nil {
		sub.IPAddress = clientIP(r)
		sub.UserAgent = r.UserAgent()
		err = h.surveys.Submit(r.Context(), sub)
	}

	if errors.Is(err, survey.ErrInvalid) {
		httputil.RespondJSON(w, http.StatusBadRequest, submitResult{Error: err.Error()})
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to store survey response", "survey_id", sub.SurveyID, "error", err)
		httputil.RespondJSON(w, http.StatusInternalServerError, submitResult{Error: "Unable to store response."})
		return
	}
	httputil.RespondJSON(w, http.StatusOK, submitResult{OK: true})
}

// clientIP prefers the raw X-Forwarded-For header, as recorded by the proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
