package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
)

// violationHighThreshold buckets a result into the high severity tier.
const violationHighThreshold = 3

// ReportService assembles the admin review page for one student: the raw
// result rows from the result service plus the derived violation log and
// aggregate stats. All numbers originate upstream; this service only
// rearranges them.
type ReportService struct {
	results *upstream.Client
	log     zerolog.Logger
}

func NewReportService(results *upstream.Client, log zerolog.Logger) *ReportService {
	return &ReportService{
		results: results,
		log:     log.With().Str("component", "report_service").Logger(),
	}
}

// StudentReport fetches a student's result history and derives the
// violation log and stats from it. Results are ordered most recent first.
func (s *ReportService) StudentReport(ctx context.Context, studentID, token string) (*model.StudentReport, error) {
	results, err := s.results.ListStudentResults(ctx, studentID, token)
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].SubmittedAt.After(results[j].SubmittedAt)
	})

	report := &model.StudentReport{
		Results:    results,
		Violations: make([]model.ViolationEntry, 0, len(results)),
	}
	if len(results) > 0 {
		report.Student = results[0].Student
	} else {
		report.Student = model.StudentRef{ID: studentID}
	}

	var percentSum float64
	for _, res := range results {
		if res.TotalMarks > 0 {
			percentSum += float64(res.Score) / float64(res.TotalMarks) * 100
		}
		report.Stats.TotalViolations += res.ViolationCount

		if res.ViolationCount == 0 {
			continue
		}
		severity := model.SeverityMedium
		if res.ViolationCount > violationHighThreshold {
			severity = model.SeverityHigh
		}
		report.Violations = append(report.Violations, model.ViolationEntry{
			Exam:        res.Exam.Title,
			Timestamp:   res.SubmittedAt,
			Severity:    severity,
			Description: fmt.Sprintf("%d violations detected", res.ViolationCount),
		})
	}

	report.Stats.TotalExams = len(results)
	if len(results) > 0 {
		report.Stats.AverageScore = percentSum / float64(len(results))
	}

	return report, nil
}
