package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sangammgr88/exam-portal-gateway/internal/middleware"
	"github.com/sangammgr88/exam-portal-gateway/internal/response"
	"github.com/sangammgr88/exam-portal-gateway/internal/service"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
)

// ReportHandler serves the admin review pages built from upstream result
// history.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// GetStudentReport godoc
// GET /api/v1/admin/students/:student_id/report
// Returns a student's result history with the derived violation log and
// aggregate stats.
func (h *ReportHandler) GetStudentReport(c *gin.Context) {
	cred := middleware.GetCredential(c)

	studentID := c.Param("student_id")
	if studentID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.reports.StudentReport(c.Request.Context(), studentID, cred.Token)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		failUpstream(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}
