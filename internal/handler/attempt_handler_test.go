package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/config"
	"github.com/sangammgr88/exam-portal-gateway/internal/handler"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
	"github.com/sangammgr88/exam-portal-gateway/internal/router"
	"github.com/sangammgr88/exam-portal-gateway/internal/session"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
	"github.com/sangammgr88/exam-portal-gateway/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

func signToken(t *testing.T, studentID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":   studentID,
		"fullName": "Test Student",
		"role":     role,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type stubLoader struct {
	exam *model.ExamDefinition
}

func (s *stubLoader) GetExam(ctx context.Context, examID, token string) (*model.ExamDefinition, error) {
	return s.exam, nil
}

type stubSubmitter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubSubmitter) SubmitResult(ctx context.Context, token string, sub *model.ResultSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func stubExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:              "ex-1",
		Title:           "Sample Exam",
		DurationMinutes: 30,
		TotalMarks:      2,
		IsActive:        true,
		Questions: []model.Question{
			{
				ID:           "q1",
				QuestionText: "2+2?",
				QuestionType: model.QuestionTypeMCQ,
				Points:       1,
				Options: []model.Option{
					{Text: "4", IsCorrect: true},
					{Text: "5", IsCorrect: false},
				},
			},
			{
				ID:           "q2",
				QuestionText: "explain",
				QuestionType: model.QuestionTypeText,
				Points:       1,
			},
		},
	}
}

func newTestRouter(t *testing.T, submitter *stubSubmitter) (*gin.Engine, *session.Hub) {
	t.Helper()
	hub := session.NewHub(&stubLoader{exam: stubExam()}, submitter, nil, nil, zerolog.Nop(), time.Hour)

	cfg := &config.Config{GinMode: gin.TestMode}
	// The report handler's service is never reached here; admin routes in
	// these tests stop at the role check.
	handlers := &router.Handlers{
		Catalog: handler.NewCatalogHandler(upstream.New("http://127.0.0.1:0", time.Second, zerolog.Nop())),
		Attempt: handler.NewAttemptHandler(hub),
		Report:  handler.NewReportHandler(nil),
		Monitor: handler.NewMonitorHandler(hub, zerolog.Nop()),
		WS:      handler.NewWSHandler(hub, zerolog.Nop(), nil),
	}

	return router.SetupRouter(handlers, cfg), hub
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func createAttempt(t *testing.T, r *gin.Engine, token string) string {
	t.Helper()
	w, resp := doRequest(t, r, http.MethodPost, "/api/v1/attempts", token, gin.H{"exam_id": "ex-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create attempt: status %d, body %s", w.Code, w.Body.String())
	}
	var data struct {
		AttemptID string `json:"attempt_id"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return data.AttemptID
}

func TestAttemptRoutesRequireToken(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})

	w, resp := doRequest(t, r, http.MethodPost, "/api/v1/attempts", "", gin.H{"exam_id": "ex-1"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "TOKEN_REQUIRED" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestCreateAttemptSanitizesExam(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	token := signToken(t, "student-1", model.RoleStudent)

	w, resp := doRequest(t, r, http.MethodPost, "/api/v1/attempts", token, gin.H{"exam_id": "ex-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if bytes.Contains(resp.Data, []byte("isCorrect")) || bytes.Contains(resp.Data, []byte("is_correct")) {
		t.Fatal("correctness data leaked to the student payload")
	}

	var data struct {
		Exam struct {
			Questions []struct {
				Options []string `json:"options"`
			} `json:"questions"`
		} `json:"exam"`
		State struct {
			Phase string `json:"phase"`
		} `json:"state"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.State.Phase != "IDLE" {
		t.Fatalf("phase = %s, want IDLE", data.State.Phase)
	}
	if len(data.Exam.Questions) != 2 || len(data.Exam.Questions[0].Options) != 2 {
		t.Fatalf("exam payload = %s", resp.Data)
	}
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	token := signToken(t, "student-1", model.RoleStudent)
	id := createAttempt(t, r, token)

	base := "/api/v1/attempts/" + id

	w, _ := doRequest(t, r, http.MethodPost, base+"/start", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d, body %s", w.Code, w.Body.String())
	}

	w, _ = doRequest(t, r, http.MethodPut, base+"/answer", token, gin.H{"question_id": "q1", "value": "4"})
	if w.Code != http.StatusOK {
		t.Fatalf("answer: status %d, body %s", w.Code, w.Body.String())
	}

	w, _ = doRequest(t, r, http.MethodPost, base+"/flag", token, gin.H{"question_id": "q2"})
	if w.Code != http.StatusOK {
		t.Fatalf("flag: status %d, body %s", w.Code, w.Body.String())
	}

	w, _ = doRequest(t, r, http.MethodPut, base+"/position", token, gin.H{"index": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("position: status %d, body %s", w.Code, w.Body.String())
	}

	w, resp := doRequest(t, r, http.MethodGet, base, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	var data struct {
		State struct {
			Phase         string `json:"phase"`
			CurrentIndex  int    `json:"current_index"`
			AnsweredCount int    `json:"answered_count"`
			FlaggedCount  int    `json:"flagged_count"`
		} `json:"state"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if data.State.Phase != "STARTED" || data.State.CurrentIndex != 1 {
		t.Fatalf("state = %+v", data.State)
	}
	if data.State.AnsweredCount != 1 || data.State.FlaggedCount != 1 {
		t.Fatalf("state = %+v", data.State)
	}

	w, resp = doRequest(t, r, http.MethodPost, base+"/submit", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: status %d, body %s", w.Code, w.Body.String())
	}
	var submitData struct {
		Result struct {
			Score      int    `json:"score"`
			TotalMarks int    `json:"total_marks"`
			Trigger    string `json:"trigger"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Data, &submitData); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if submitData.Result.Score != 1 || submitData.Result.TotalMarks != 2 {
		t.Fatalf("result = %+v", submitData.Result)
	}
	if submitData.Result.Trigger != "manual" {
		t.Fatalf("trigger = %s, want manual", submitData.Result.Trigger)
	}
}

func TestAnswerUnknownQuestion(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	token := signToken(t, "student-1", model.RoleStudent)
	id := createAttempt(t, r, token)

	doRequest(t, r, http.MethodPost, "/api/v1/attempts/"+id+"/start", token, nil)

	w, resp := doRequest(t, r, http.MethodPut, "/api/v1/attempts/"+id+"/answer", token,
		gin.H{"question_id": "nope", "value": "4"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "UNKNOWN_QUESTION" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestAnswerBeforeStartConflicts(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	token := signToken(t, "student-1", model.RoleStudent)
	id := createAttempt(t, r, token)

	w, resp := doRequest(t, r, http.MethodPut, "/api/v1/attempts/"+id+"/answer", token,
		gin.H{"question_id": "q1", "value": "4"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "ATTEMPT_NOT_STARTED" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestRejectedSubmissionKeepsAttemptOpen(t *testing.T) {
	submitter := &stubSubmitter{err: &upstream.ServerError{
		StatusCode: http.StatusBadRequest,
		Message:    "Result already recorded for this exam",
	}}
	r, _ := newTestRouter(t, submitter)
	token := signToken(t, "student-1", model.RoleStudent)
	id := createAttempt(t, r, token)

	doRequest(t, r, http.MethodPost, "/api/v1/attempts/"+id+"/start", token, nil)

	w, resp := doRequest(t, r, http.MethodPost, "/api/v1/attempts/"+id+"/submit", token, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "SUBMISSION_REJECTED" {
		t.Fatalf("error = %+v", resp.Error)
	}
	// The upstream's own message must reach the student verbatim.
	if resp.Error.Message != "Result already recorded for this exam" {
		t.Fatalf("message = %q", resp.Error.Message)
	}

	w, stateResp := doRequest(t, r, http.MethodGet, "/api/v1/attempts/"+id, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get after rejection: status %d", w.Code)
	}
	var data struct {
		State struct {
			Phase string `json:"phase"`
		} `json:"state"`
	}
	json.Unmarshal(stateResp.Data, &data)
	if data.State.Phase != "STARTED" {
		t.Fatalf("phase = %s, attempt must stay open", data.State.Phase)
	}
}

func TestDoubleSubmitConflicts(t *testing.T) {
	submitter := &stubSubmitter{}
	r, _ := newTestRouter(t, submitter)
	token := signToken(t, "student-1", model.RoleStudent)
	id := createAttempt(t, r, token)

	doRequest(t, r, http.MethodPost, "/api/v1/attempts/"+id+"/start", token, nil)
	doRequest(t, r, http.MethodPost, "/api/v1/attempts/"+id+"/submit", token, nil)

	w, resp := doRequest(t, r, http.MethodPost, "/api/v1/attempts/"+id+"/submit", token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "ATTEMPT_ALREADY_SUBMITTED" {
		t.Fatalf("error = %+v", resp.Error)
	}
	if submitter.calls != 1 {
		t.Fatalf("upstream called %d times, want 1", submitter.calls)
	}
}

func TestCancelOnlyBeforeStart(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	token := signToken(t, "student-1", model.RoleStudent)
	id := createAttempt(t, r, token)

	doRequest(t, r, http.MethodPost, "/api/v1/attempts/"+id+"/start", token, nil)

	w, resp := doRequest(t, r, http.MethodDelete, "/api/v1/attempts/"+id, token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "ATTEMPT_ALREADY_STARTED" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestAttemptOwnership(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	owner := signToken(t, "student-1", model.RoleStudent)
	intruder := signToken(t, "student-2", model.RoleStudent)
	id := createAttempt(t, r, owner)

	w, resp := doRequest(t, r, http.MethodGet, "/api/v1/attempts/"+id, intruder, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "FORBIDDEN" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestAdminRoutesRejectStudents(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	token := signToken(t, "student-1", model.RoleStudent)

	w, resp := doRequest(t, r, http.MethodGet, "/api/v1/admin/students/student-1/report", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "ADMIN_ACCESS_ONLY" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestUnknownAttemptID(t *testing.T) {
	r, _ := newTestRouter(t, &stubSubmitter{})
	token := signToken(t, "student-1", model.RoleStudent)

	w, resp := doRequest(t, r, http.MethodGet, "/api/v1/attempts/8e30ba52-0000-0000-0000-000000000000", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "ATTEMPT_NOT_FOUND" {
		t.Fatalf("error = %+v", resp.Error)
	}

	w, resp = doRequest(t, r, http.MethodGet, "/api/v1/attempts/not-a-uuid", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != "INVALID_ID" {
		t.Fatalf("error = %+v", resp.Error)
	}
}
