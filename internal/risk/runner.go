// Package risk orchestrates a detection run: load the snapshot and open
// flags, apply the risk policy, persist the batch decision.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/policy"
)

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "insightflow_risk_runs_total",
	Help: "Completed risk detection runs by trigger.",
}, []string{"trigger"})

type Store interface {
	GetRiskRules(ctx context.Context) (model.RiskRules, error)
	ListStudentMetrics(ctx context.Context) ([]policy.StudentMetrics, error)
	ListUnresolvedFlagsByStudent(ctx context.Context) (map[string][]model.RiskFlag, error)
	InsertRiskFlags(ctx context.Context, flags []model.RiskFlag) error
	ResolveRiskFlags(ctx context.Context, flagIDs []string, resolvedAt time.Time) error
	SetStudentsRiskFlagged(ctx context.Context, studentIDs []string, flagged bool, updatedAt time.Time) error
}

type Report struct {
	Flagged  int
	Created  []model.RiskFlag
	Resolved int
}

type Runner struct {
	Store  Store
	Policy *policy.RiskPolicy
	Now    func() time.Time
}

func NewRunner(store Store) *Runner {
	return &Runner{
		Store:  store,
		Policy: policy.NewRiskPolicy(),
		Now:    time.Now,
	}
}

// Run executes one detection pass. Nil overrides fall back to the persisted
// rules; a partial override keeps the persisted value for the other
// threshold.
func (r *Runner) Run(ctx context.Context, gpaOverride, attendanceOverride *float64) (Report, error) {
	return r.run(ctx, gpaOverride, attendanceOverride, "manual")
}

// AutoRun executes a pass only when the persisted rules enable it. The
// second return reports whether a pass ran.
func (r *Runner) AutoRun(ctx context.Context) (Report, bool, error) {
	rules, err := r.Store.GetRiskRules(ctx)
	if err != nil {
		return Report{}, false, fmt.Errorf("load risk rules: %w", err)
	}
	if !rules.AutoRunEnabled {
		return Report{}, false, nil
	}
	report, err := r.run(ctx, nil, nil, "auto")
	return report, err == nil, err
}

func (r *Runner) run(ctx context.Context, gpaOverride, attendanceOverride *float64, trigger string) (Report, error) {
	rules, err := r.Store.GetRiskRules(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load risk rules: %w", err)
	}
	thresholds := policy.Thresholds{GPA: rules.GPAThreshold, Attendance: rules.AttendanceThreshold}
	if gpaOverride != nil {
		thresholds.GPA = *gpaOverride
	}
	if attendanceOverride != nil {
		thresholds.Attendance = *attendanceOverride
	}

	metrics, err := r.Store.ListStudentMetrics(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load student metrics: %w", err)
	}
	existing, err := r.Store.ListUnresolvedFlagsByStudent(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load risk flags: %w", err)
	}

	result, err := r.Policy.RunBatch(metrics, thresholds, existing)
	if err != nil {
		return Report{}, err
	}

	now := r.Now().UTC()
	if err := r.Store.InsertRiskFlags(ctx, result.Created); err != nil {
		return Report{}, fmt.Errorf("insert risk flags: %w", err)
	}
	if err := r.Store.ResolveRiskFlags(ctx, result.Resolve, now); err != nil {
		return Report{}, fmt.Errorf("resolve risk flags: %w", err)
	}

	flaggedIDs := make([]string, 0, len(result.Created))
	for _, flag := range result.Created {
		flaggedIDs = append(flaggedIDs, flag.StudentID)
	}
	if err := r.Store.SetStudentsRiskFlagged(ctx, flaggedIDs, true, now); err != nil {
		return Report{}, fmt.Errorf("mark students flagged: %w", err)
	}
	if len(result.Resolve) > 0 {
		if err := r.clearRecovered(ctx, now); err != nil {
			return Report{}, err
		}
	}

	runsTotal.WithLabelValues(trigger).Inc()
	return Report{
		Flagged:  result.Flagged,
		Created:  result.Created,
		Resolved: len(result.Resolve),
	}, nil
}

// clearRecovered drops the student-level marker for students who no longer
// have any open flag after auto-resolution.
func (r *Runner) clearRecovered(ctx context.Context, now time.Time) error {
	open, err := r.Store.ListUnresolvedFlagsByStudent(ctx)
	if err != nil {
		return fmt.Errorf("reload risk flags: %w", err)
	}
	metrics, err := r.Store.ListStudentMetrics(ctx)
	if err != nil {
		return fmt.Errorf("reload student metrics: %w", err)
	}
	var clear []string
	for _, m := range metrics {
		if len(open[m.StudentID]) == 0 {
			clear = append(clear, m.StudentID)
		}
	}
	if err := r.Store.SetStudentsRiskFlagged(ctx, clear, false, now); err != nil {
		return fmt.Errorf("clear student flags: %w", err)
	}
	return nil
}
