package policy

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
)

func testRiskPolicy() *RiskPolicy {
	ids := 0
	policy := NewRiskPolicy()
	policy.Now = func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }
	policy.NewID = func() string {
		ids++
		return fmt.Sprintf("flag-%d", ids)
	}
	return policy
}

func TestEvaluateReasons(t *testing.T) {
	thresholds := Thresholds{GPA: 2.5, Attendance: 75}

	cases := []struct {
		name    string
		metrics StudentMetrics
		reason  string
	}{
		{"both below", StudentMetrics{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60}, ReasonLowGPAAttendance},
		{"gpa only", StudentMetrics{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 90}, ReasonLowGPA},
		{"attendance only", StudentMetrics{StudentID: "s1", AvgGPA: 3.0, AvgAttendance: 60}, ReasonLowAttendance},
		{"neither", StudentMetrics{StudentID: "s1", AvgGPA: 3.0, AvgAttendance: 90}, ""},
		{"gpa at threshold does not trigger", StudentMetrics{StudentID: "s1", AvgGPA: 2.5, AvgAttendance: 90}, ""},
		{"attendance at threshold does not trigger", StudentMetrics{StudentID: "s1", AvgGPA: 3.0, AvgAttendance: 75}, ""},
	}
	for _, tc := range cases {
		outcome, err := testRiskPolicy().Evaluate(tc.metrics, thresholds, nil)
		if err != nil {
			t.Fatalf("%s: evaluate error: %v", tc.name, err)
		}
		if tc.reason == "" {
			if !outcome.Unchanged() {
				t.Fatalf("%s: expected unchanged, got %+v", tc.name, outcome)
			}
			continue
		}
		if outcome.Flag == nil || outcome.Flag.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %+v", tc.name, tc.reason, outcome.Flag)
		}
		if outcome.Flag.StudentID != tc.metrics.StudentID || outcome.Flag.AvgGPA != tc.metrics.AvgGPA || outcome.Flag.AvgAttendance != tc.metrics.AvgAttendance {
			t.Fatalf("%s: flag does not carry the evaluated metrics: %+v", tc.name, outcome.Flag)
		}
	}
}

func TestEvaluateIsPure(t *testing.T) {
	policy := NewRiskPolicy()
	policy.Now = func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }
	policy.NewID = func() string { return "flag-1" }

	metrics := StudentMetrics{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60}
	thresholds := Thresholds{GPA: 2.5, Attendance: 75}

	first, err := policy.Evaluate(metrics, thresholds, nil)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	second, err := policy.Evaluate(metrics, thresholds, nil)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical outcomes, got %+v vs %+v", first, second)
	}
}

func TestEvaluateIdempotence(t *testing.T) {
	policy := testRiskPolicy()
	metrics := StudentMetrics{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60}
	thresholds := Thresholds{GPA: 2.5, Attendance: 75}

	outcome, err := policy.Evaluate(metrics, thresholds, nil)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if outcome.Flag == nil {
		t.Fatalf("expected a flag on first evaluation")
	}

	// Same reason already unresolved: no duplicate.
	again, err := policy.Evaluate(metrics, thresholds, []model.RiskFlag{*outcome.Flag})
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if !again.Unchanged() {
		t.Fatalf("expected unchanged, got %+v", again)
	}

	// A resolved flag with the same reason does not suppress a new one.
	resolved := *outcome.Flag
	resolved.Resolved = true
	rearmed, err := policy.Evaluate(metrics, thresholds, []model.RiskFlag{resolved})
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if rearmed.Flag == nil {
		t.Fatalf("expected a new flag once the old one is resolved")
	}
}

func TestEvaluateReasonChange(t *testing.T) {
	policy := testRiskPolicy()
	thresholds := Thresholds{GPA: 2.5, Attendance: 75}
	existing := []model.RiskFlag{{ID: "flag-old", StudentID: "s1", Reason: ReasonLowGPA}}

	// Situation changed category: new flag, stale one left alone.
	outcome, err := policy.Evaluate(StudentMetrics{StudentID: "s1", AvgGPA: 3.0, AvgAttendance: 60}, thresholds, existing)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if outcome.Flag == nil || outcome.Flag.Reason != ReasonLowAttendance {
		t.Fatalf("expected new Low Attendance flag, got %+v", outcome.Flag)
	}
	if len(outcome.Resolve) != 0 {
		t.Fatalf("expected stale flag untouched, got resolve %v", outcome.Resolve)
	}
}

func TestEvaluateRecovery(t *testing.T) {
	thresholds := Thresholds{GPA: 2.5, Attendance: 75}
	recovered := StudentMetrics{StudentID: "s1", AvgGPA: 3.5, AvgAttendance: 90}
	existing := []model.RiskFlag{{ID: "flag-old", StudentID: "s1", Reason: ReasonLowGPA}}

	// Default: no auto-resolution on recovery.
	policy := testRiskPolicy()
	outcome, err := policy.Evaluate(recovered, thresholds, existing)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if !outcome.Unchanged() {
		t.Fatalf("expected unchanged, got %+v", outcome)
	}

	policy.AutoResolve = true
	outcome, err = policy.Evaluate(recovered, thresholds, existing)
	if err != nil {
		t.Fatalf("evaluate error: %v", err)
	}
	if len(outcome.Resolve) != 1 || outcome.Resolve[0] != "flag-old" {
		t.Fatalf("expected flag-old resolved, got %v", outcome.Resolve)
	}
}

func TestEvaluateInvalidMetric(t *testing.T) {
	policy := testRiskPolicy()
	thresholds := Thresholds{GPA: 2.5, Attendance: 75}

	for _, metrics := range []StudentMetrics{
		{StudentID: "s1", AvgGPA: 4.5, AvgAttendance: 90},
		{StudentID: "s1", AvgGPA: -0.1, AvgAttendance: 90},
		{StudentID: "s1", AvgGPA: 3.0, AvgAttendance: 101},
		{StudentID: "s1", AvgGPA: 3.0, AvgAttendance: -1},
	} {
		_, err := policy.Evaluate(metrics, thresholds, nil)
		var invalid *InvalidMetricError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidMetricError for %+v, got %v", metrics, err)
		}
		if invalid.StudentID != "s1" {
			t.Fatalf("expected student id in error, got %q", invalid.StudentID)
		}
	}
}

func TestRunBatch(t *testing.T) {
	policy := testRiskPolicy()
	thresholds := Thresholds{GPA: 2.5, Attendance: 75}
	metrics := []StudentMetrics{
		{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60},
		{StudentID: "s2", AvgGPA: 3.0, AvgAttendance: 60},
		{StudentID: "s3", AvgGPA: 3.5, AvgAttendance: 90},
		{StudentID: "s4", AvgGPA: 2.0, AvgAttendance: 90},
	}
	existing := map[string][]model.RiskFlag{
		"s4": {{ID: "flag-old", StudentID: "s4", Reason: ReasonLowGPA}},
	}

	result, err := policy.RunBatch(metrics, thresholds, existing)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if result.Flagged != 2 || len(result.Created) != 2 {
		t.Fatalf("expected 2 new flags, got %+v", result)
	}
	reasons := map[string]string{}
	for _, flag := range result.Created {
		reasons[flag.StudentID] = flag.Reason
	}
	if reasons["s1"] != ReasonLowGPAAttendance || reasons["s2"] != ReasonLowAttendance {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestRunBatchFailsClosed(t *testing.T) {
	policy := testRiskPolicy()
	metrics := []StudentMetrics{
		{StudentID: "s1", AvgGPA: 2.0, AvgAttendance: 60},
		{StudentID: "s2", AvgGPA: 9.0, AvgAttendance: 60},
	}

	_, err := policy.RunBatch(metrics, Thresholds{GPA: 2.5, Attendance: 75}, nil)
	var invalid *InvalidMetricError
	if !errors.As(err, &invalid) || invalid.StudentID != "s2" {
		t.Fatalf("expected InvalidMetricError for s2, got %v", err)
	}
}
