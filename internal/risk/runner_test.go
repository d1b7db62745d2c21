package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/policy"
)

type fakeStore struct {
	rules    model.RiskRules
	rulesErr error
	metrics  []policy.StudentMetrics
	flags    map[string][]model.RiskFlag

	inserted []model.RiskFlag
	resolved []string
	marked   map[string]bool
}

func (s *fakeStore) GetRiskRules(context.Context) (model.RiskRules, error) {
	return s.rules, s.rulesErr
}

func (s *fakeStore) ListStudentMetrics(context.Context) ([]policy.StudentMetrics, error) {
	return s.metrics, nil
}

func (s *fakeStore) ListUnresolvedFlagsByStudent(context.Context) (map[string][]model.RiskFlag, error) {
	flags := make(map[string][]model.RiskFlag, len(s.flags))
	for id, list := range s.flags {
		flags[id] = append([]model.RiskFlag{}, list...)
	}
	for _, flag := range s.inserted {
		flags[flag.StudentID] = append(flags[flag.StudentID], flag)
	}
	return flags, nil
}

func (s *fakeStore) InsertRiskFlags(_ context.Context, flags []model.RiskFlag) error {
	s.inserted = append(s.inserted, flags...)
	return nil
}

func (s *fakeStore) ResolveRiskFlags(_ context.Context, flagIDs []string, _ time.Time) error {
	s.resolved = append(s.resolved, flagIDs...)
	for student, list := range s.flags {
		var kept []model.RiskFlag
		for _, flag := range list {
			keep := true
			for _, id := range flagIDs {
				if flag.ID == id {
					keep = false
				}
			}
			if keep {
				kept = append(kept, flag)
			}
		}
		s.flags[student] = kept
	}
	return nil
}

func (s *fakeStore) SetStudentsRiskFlagged(_ context.Context, studentIDs []string, flagged bool, _ time.Time) error {
	if s.marked == nil {
		s.marked = map[string]bool{}
	}
	for _, id := range studentIDs {
		s.marked[id] = flagged
	}
	return nil
}

func defaultRules() model.RiskRules {
	return model.RiskRules{GPAThreshold: 2.5, AttendanceThreshold: 75, AutoRunEnabled: true}
}

func TestRunCreatesFlags(t *testing.T) {
	store := &fakeStore{
		rules: defaultRules(),
		metrics: []policy.StudentMetrics{
			{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60},
			{StudentID: "s2", AvgGPA: 3.5, AvgAttendance: 90},
		},
	}
	runner := NewRunner(store)

	report, err := runner.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if report.Flagged != 1 || len(store.inserted) != 1 {
		t.Fatalf("expected one flag, got report=%+v inserted=%d", report, len(store.inserted))
	}
	if store.inserted[0].Reason != policy.ReasonLowGPAAttendance {
		t.Fatalf("unexpected reason %q", store.inserted[0].Reason)
	}
	if !store.marked["s1"] {
		t.Fatalf("expected s1 marked flagged")
	}

	// Second run with the same data is a no-op.
	report, err = runner.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("rerun error: %v", err)
	}
	if report.Flagged != 0 || len(store.inserted) != 1 {
		t.Fatalf("expected idempotent rerun, got report=%+v inserted=%d", report, len(store.inserted))
	}
}

func TestRunThresholdOverrides(t *testing.T) {
	store := &fakeStore{
		rules:   defaultRules(),
		metrics: []policy.StudentMetrics{{StudentID: "s1", AvgGPA: 3.0, AvgAttendance: 90}},
	}
	runner := NewRunner(store)

	gpa := 3.5
	report, err := runner.Run(context.Background(), &gpa, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if report.Flagged != 1 || store.inserted[0].Reason != policy.ReasonLowGPA {
		t.Fatalf("expected Low GPA flag under override, got %+v", report)
	}
}

func TestRunFailsClosedOnInvalidMetric(t *testing.T) {
	store := &fakeStore{
		rules: defaultRules(),
		metrics: []policy.StudentMetrics{
			{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60},
			{StudentID: "s2", AvgGPA: 7.0, AvgAttendance: 60},
		},
	}
	runner := NewRunner(store)

	_, err := runner.Run(context.Background(), nil, nil)
	var invalid *policy.InvalidMetricError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidMetricError, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("expected no flags persisted on aborted batch")
	}
}

func TestAutoRunRespectsRules(t *testing.T) {
	store := &fakeStore{
		rules:   model.RiskRules{GPAThreshold: 2.5, AttendanceThreshold: 75, AutoRunEnabled: false},
		metrics: []policy.StudentMetrics{{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60}},
	}
	runner := NewRunner(store)

	_, ran, err := runner.AutoRun(context.Background())
	if err != nil {
		t.Fatalf("autorun error: %v", err)
	}
	if ran || len(store.inserted) != 0 {
		t.Fatalf("expected autorun skipped when disabled")
	}

	store.rules.AutoRunEnabled = true
	report, ran, err := runner.AutoRun(context.Background())
	if err != nil {
		t.Fatalf("autorun error: %v", err)
	}
	if !ran || report.Flagged != 1 {
		t.Fatalf("expected autorun to flag, got ran=%v report=%+v", ran, report)
	}
}

func TestRunAutoResolve(t *testing.T) {
	store := &fakeStore{
		rules:   defaultRules(),
		metrics: []policy.StudentMetrics{{StudentID: "s1", AvgGPA: 3.5, AvgAttendance: 90}},
		flags: map[string][]model.RiskFlag{
			"s1": {{ID: "flag-1", StudentID: "s1", Reason: policy.ReasonLowGPA}},
		},
		marked: map[string]bool{"s1": true},
	}
	runner := NewRunner(store)

	// Default keeps the recovered student's flag open.
	report, err := runner.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if report.Resolved != 0 || len(store.resolved) != 0 {
		t.Fatalf("expected no auto-resolution by default")
	}

	runner.Policy.AutoResolve = true
	report, err = runner.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if report.Resolved != 1 || len(store.resolved) != 1 || store.resolved[0] != "flag-1" {
		t.Fatalf("expected flag-1 resolved, got report=%+v resolved=%v", report, store.resolved)
	}
	if store.marked["s1"] {
		t.Fatalf("expected student marker cleared after recovery")
	}
}
