package policy

import (
	"time"

	"github.com/google/uuid"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
)

const (
	ReasonLowGPA           = "Low GPA"
	ReasonLowAttendance    = "Low Attendance"
	ReasonLowGPAAttendance = "Low GPA and Attendance"
)

type Thresholds struct {
	GPA        float64
	Attendance float64
}

// StudentMetrics is a read-only snapshot supplied by the store at
// evaluation time. AvgGPA must be within [0,4] and AvgAttendance within
// [0,100].
type StudentMetrics struct {
	StudentID     string
	AvgGPA        float64
	AvgAttendance float64
}

// Outcome of evaluating one student. A nil Flag with no Resolve entries
// means Unchanged.
type Outcome struct {
	Flag    *model.RiskFlag
	Resolve []string
}

func (o Outcome) Unchanged() bool {
	return o.Flag == nil && len(o.Resolve) == 0
}

type BatchResult struct {
	Created []model.RiskFlag
	Resolve []string
	Flagged int
}

// RiskPolicy decides which students get flagged and why. AutoResolve
// controls whether flags are cleared when metrics recover; it defaults to
// off, matching the long-observed behavior where resolution is a manual
// action.
type RiskPolicy struct {
	AutoResolve bool
	Now         func() time.Time
	NewID       func() string
}

func NewRiskPolicy() *RiskPolicy {
	return &RiskPolicy{
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

func reasonFor(metrics StudentMetrics, thresholds Thresholds) string {
	gpaBelow := metrics.AvgGPA < thresholds.GPA
	attendanceBelow := metrics.AvgAttendance < thresholds.Attendance
	switch {
	case gpaBelow && attendanceBelow:
		return ReasonLowGPAAttendance
	case gpaBelow:
		return ReasonLowGPA
	case attendanceBelow:
		return ReasonLowAttendance
	default:
		return ""
	}
}

// Evaluate applies the threshold rule to one student. Both comparisons are
// strict: a metric equal to its threshold does not trigger. An unresolved
// flag with the same reason suppresses a duplicate; a differing reason
// creates a new flag without touching the stale one.
func (p *RiskPolicy) Evaluate(metrics StudentMetrics, thresholds Thresholds, existing []model.RiskFlag) (Outcome, error) {
	if metrics.AvgGPA < 0 || metrics.AvgGPA > 4 || metrics.AvgAttendance < 0 || metrics.AvgAttendance > 100 {
		return Outcome{}, &InvalidMetricError{StudentID: metrics.StudentID}
	}

	reason := reasonFor(metrics, thresholds)
	if reason == "" {
		if !p.AutoResolve {
			return Outcome{}, nil
		}
		var resolve []string
		for _, flag := range existing {
			if !flag.Resolved {
				resolve = append(resolve, flag.ID)
			}
		}
		return Outcome{Resolve: resolve}, nil
	}

	for _, flag := range existing {
		if !flag.Resolved && flag.Reason == reason {
			return Outcome{}, nil
		}
	}

	return Outcome{
		Flag: &model.RiskFlag{
			ID:            p.NewID(),
			StudentID:     metrics.StudentID,
			Reason:        reason,
			AvgGPA:        metrics.AvgGPA,
			AvgAttendance: metrics.AvgAttendance,
			FlaggedOn:     p.Now().UTC(),
		},
	}, nil
}

// RunBatch evaluates every student exactly once. Evaluations are
// independent, so order does not matter. A single invalid metric aborts the
// whole batch.
func (p *RiskPolicy) RunBatch(allMetrics []StudentMetrics, thresholds Thresholds, existingByStudent map[string][]model.RiskFlag) (BatchResult, error) {
	var result BatchResult
	for _, metrics := range allMetrics {
		outcome, err := p.Evaluate(metrics, thresholds, existingByStudent[metrics.StudentID])
		if err != nil {
			return BatchResult{}, err
		}
		if outcome.Flag != nil {
			result.Created = append(result.Created, *outcome.Flag)
		}
		result.Resolve = append(result.Resolve, outcome.Resolve...)
	}
	result.Flagged = len(result.Created)
	return result, nil
}
