package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the attempt use cases as JSON endpoints.
type Handler struct {
	service *app.AttemptService
}

func NewHandler(service *app.AttemptService) *Handler {
	return &Handler{service: service}
}

type saveAnswerRequest struct {
	QuestionID      string   `json:"questionId"`
	SelectedOptions []string `json:"selectedOptions"`
}

type awayRequest struct {
	Action domain.AwayAction `json:"action"`
}

type submitRequest struct {
	SubmissionReason domain.SubmissionReason `json:"submissionReason"`
}

type publishResponse struct {
	QuizID  string `json:"quizId"`
	Updated int    `json:"updated"`
}

func subject(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.Subject
}

func (h *Handler) ListPublishedQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListPublishedQuizzes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) QuizOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.QuizOverview(r.Context(), chi.URLParam(r, "quizID"), subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.StartAttempt(r.Context(), chi.URLParam(r, "quizID"), subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res.Attempt)
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"), subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	var req saveAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	attemptID := chi.URLParam(r, "attemptID")
	if err := h.service.SaveAnswer(r.Context(), attemptID, subject(r), req.QuestionID, req.SelectedOptions); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "answer saved"})
}

func (h *Handler) RegisterAway(w http.ResponseWriter, r *http.Request) {
	var req awayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.service.RegisterAway(r.Context(), chi.URLParam(r, "attemptID"), subject(r), req.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	// An empty body is a manual submission.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json"})
		return
	}
	if req.SubmissionReason == domain.ReasonNone {
		req.SubmissionReason = domain.ReasonManual
	}
	res, err := h.service.Submit(r.Context(), chi.URLParam(r, "attemptID"), subject(r), req.SubmissionReason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetResults(r.Context(), chi.URLParam(r, "attemptID"), subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) PublishResults(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	n, err := h.service.PublishResults(r.Context(), quizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publishResponse{QuizID: quizID, Updated: n})
}

func (h *Handler) ListCompletedAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.ListCompletedAttempts(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}
