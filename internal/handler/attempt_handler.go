package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangammgr88/exam-portal-gateway/internal/middleware"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
	"github.com/sangammgr88/exam-portal-gateway/internal/response"
	"github.com/sangammgr88/exam-portal-gateway/internal/session"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
	"github.com/sangammgr88/exam-portal-gateway/internal/validator"
)

// AttemptHandler handles the attempt lifecycle: create, start, mutate,
// submit. Every route below requires a credential; ownership of the attempt
// is checked on each call.
type AttemptHandler struct {
	hub *session.Hub
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(hub *session.Hub) *AttemptHandler {
	return &AttemptHandler{hub: hub}
}

// CreateAttempt godoc
// POST /api/v1/attempts
// Loads the exam and registers an attempt. Idempotent per (exam, student):
// re-posting returns the existing live attempt instead of forking a second
// countdown.
func (h *AttemptHandler) CreateAttempt(c *gin.Context) {
	cred := middleware.GetCredential(c)

	var req model.CreateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	att, err := h.hub.CreateAttempt(c.Request.Context(), req.ExamID, cred)
	if err != nil {
		failUpstream(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"attempt_id": att.ID,
		"exam":       att.Ctrl.Exam().View(true),
		"state":      att.Ctrl.Snapshot(),
	})
}

// StartAttempt godoc
// POST /api/v1/attempts/:attempt_id/start
// Arms the countdown. Irreversible; a second start is rejected.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	att, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	if err := h.hub.Start(att.ID); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": att.Ctrl.Snapshot()})
}

// GetAttempt godoc
// GET /api/v1/attempts/:attempt_id
// Returns the attempt state: phase, countdown, per-question answer and flag
// status, and the result once submitted. Covers page reload.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	att, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id": att.ID,
		"exam":       att.Ctrl.Exam().View(true),
		"state":      att.Ctrl.Snapshot(),
	})
}

// SaveAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answer
// Overwrites one question's answer. An empty value clears it.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	att, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.hub.RecordAnswer(att.ID, req.QuestionID, req.Value); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID, "saved": true})
}

// ToggleFlag godoc
// POST /api/v1/attempts/:attempt_id/flag
// Flips one question's review flag, independent of its answer.
func (h *AttemptHandler) ToggleFlag(c *gin.Context) {
	att, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	var req model.FlagRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.hub.ToggleFlag(att.ID, req.QuestionID); err != nil {
		failSession(c, err)
		return
	}

	rec, err := att.Ctrl.Answer(req.QuestionID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID, "flagged": rec.Flagged})
}

// SetPosition godoc
// PUT /api/v1/attempts/:attempt_id/position
// Moves the current-question pointer, clamped to the question range. Free
// navigation: no answer is required to move on.
func (h *AttemptHandler) SetPosition(c *gin.Context) {
	att, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	var req model.PositionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	att.Ctrl.NavigateTo(*req.Index)
	response.Success(c, http.StatusOK, gin.H{"current_index": att.Ctrl.Snapshot().CurrentIndex})
}

// SubmitAttempt godoc
// POST /api/v1/attempts/:attempt_id/submit
// Runs the manual submission path. On upstream rejection the attempt stays
// open and the rejection message is forwarded verbatim so the student can
// retry.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	att, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	result, err := h.hub.Submit(c.Request.Context(), att.ID, model.TriggerManual)
	if err != nil {
		failSubmission(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// CancelAttempt godoc
// DELETE /api/v1/attempts/:attempt_id
// Discards an attempt that has not been started. Leaving a running exam is
// not a cancellation path; only timeout or submission ends a started one.
func (h *AttemptHandler) CancelAttempt(c *gin.Context) {
	att, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	if err := h.hub.Remove(att.ID); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

// ownedAttempt resolves the :attempt_id param and checks the requester owns
// the attempt. Admin credentials may read any attempt.
func (h *AttemptHandler) ownedAttempt(c *gin.Context) (*session.Attempt, bool) {
	cred := middleware.GetCredential(c)

	id, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, false
	}

	att, err := h.hub.Get(id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return nil, false
	}

	if att.Ctrl.Credential().StudentID != cred.StudentID && !cred.IsAdmin() {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}
	return att, true
}

// failSession maps controller and hub errors to API error codes.
func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownAttempt):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, session.ErrNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotStarted)
	case errors.Is(err, session.ErrAlreadyStarted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptStarted)
	case errors.Is(err, session.ErrSubmitInFlight):
		response.Fail(c, http.StatusConflict, response.ErrSubmitInFlight)
	case errors.Is(err, session.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
	case errors.Is(err, session.ErrUnknownQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// failSubmission maps submission-path errors: state machine conflicts keep
// their session codes, upstream rejections forward the server's message.
func failSubmission(c *gin.Context, err error) {
	var srvErr *upstream.ServerError
	switch {
	case errors.As(err, &srvErr):
		response.FailWithMessage(c, http.StatusBadGateway, response.ErrSubmissionRejected, srvErr.Message)
	case errors.Is(err, upstream.ErrUnauthorized):
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
	case isNetworkErr(err):
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamUnavailable)
	default:
		failSession(c, err)
	}
}

func isNetworkErr(err error) bool {
	var netErr *upstream.NetworkError
	return errors.As(err, &netErr)
}
