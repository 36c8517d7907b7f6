package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sangammgr88/exam-portal-gateway/internal/middleware"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
	"github.com/sangammgr88/exam-portal-gateway/internal/response"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
)

// CatalogHandler serves the student exam catalog, proxied from the exam
// service with answer data stripped.
type CatalogHandler struct {
	exams *upstream.Client
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(exams *upstream.Client) *CatalogHandler {
	return &CatalogHandler{exams: exams}
}

// ListExams godoc
// GET /api/v1/exams
// Returns the active exams a student can take, without questions.
func (h *CatalogHandler) ListExams(c *gin.Context) {
	cred := middleware.GetCredential(c)

	defs, err := h.exams.ListExams(c.Request.Context(), cred.Token)
	if err != nil {
		failUpstream(c, err)
		return
	}

	views := make([]model.ExamView, 0, len(defs))
	for i := range defs {
		if !defs[i].IsActive {
			continue
		}
		views = append(views, defs[i].View(false))
	}

	response.Success(c, http.StatusOK, gin.H{"exams": views})
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
// Returns one exam's instructions view: metadata and sanitized questions.
func (h *CatalogHandler) GetExam(c *gin.Context) {
	cred := middleware.GetCredential(c)

	examID := c.Param("exam_id")
	if examID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	def, err := h.exams.GetExam(c.Request.Context(), examID, cred.Token)
	if err != nil {
		failUpstream(c, err)
		return
	}
	if !def.IsActive {
		response.Fail(c, http.StatusConflict, response.ErrExamInactive)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": def.View(true)})
}

// failUpstream maps upstream client errors to API error codes. Server
// rejection messages are forwarded verbatim.
func failUpstream(c *gin.Context, err error) {
	var srvErr *upstream.ServerError
	switch {
	case errors.Is(err, upstream.ErrUnauthorized):
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
	case errors.Is(err, upstream.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
	case errors.Is(err, upstream.ErrInactive):
		response.Fail(c, http.StatusConflict, response.ErrExamInactive)
	case errors.As(err, &srvErr):
		response.FailWithMessage(c, http.StatusBadGateway, response.ErrUpstreamUnavailable, srvErr.Message)
	default:
		response.Fail(c, http.StatusBadGateway, response.ErrUpstreamUnavailable)
	}
}
