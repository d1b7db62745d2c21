package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
)

const riskFlagColumns = `id, student_id, reason, avg_gpa, avg_attendance, flagged_on, resolved, resolved_at`

func scanRiskFlag(row interface{ Scan(...any) error }) (model.RiskFlag, error) {
	var flag model.RiskFlag
	err := row.Scan(
		&flag.ID,
		&flag.StudentID,
		&flag.Reason,
		&flag.AvgGPA,
		&flag.AvgAttendance,
		&flag.FlaggedOn,
		&flag.Resolved,
		&flag.ResolvedAt,
	)
	return flag, err
}

func (s *Store) ListRiskFlags(ctx context.Context) ([]model.RiskFlag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+riskFlagColumns+`
		FROM risk_flags
		ORDER BY resolved, flagged_on DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []model.RiskFlag
	for rows.Next() {
		flag, err := scanRiskFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func (s *Store) ListUnresolvedFlags(ctx context.Context, studentID string) ([]model.RiskFlag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+riskFlagColumns+`
		FROM risk_flags
		WHERE student_id = $1 AND resolved = false
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []model.RiskFlag
	for rows.Next() {
		flag, err := scanRiskFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

// ListUnresolvedFlagsByStudent loads the open flags for every student in
// one pass, keyed by student id, for batch evaluation.
func (s *Store) ListUnresolvedFlagsByStudent(ctx context.Context) (map[string][]model.RiskFlag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+riskFlagColumns+`
		FROM risk_flags
		WHERE resolved = false
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := make(map[string][]model.RiskFlag)
	for rows.Next() {
		flag, err := scanRiskFlag(rows)
		if err != nil {
			return nil, err
		}
		flags[flag.StudentID] = append(flags[flag.StudentID], flag)
	}
	return flags, rows.Err()
}

func (s *Store) InsertRiskFlags(ctx context.Context, flags []model.RiskFlag) error {
	if len(flags) == 0 {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	for _, flag := range flags {
		if _, err := tx.Exec(ctx, `
			INSERT INTO risk_flags (`+riskFlagColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, flag.ID, flag.StudentID, flag.Reason, flag.AvgGPA, flag.AvgAttendance, flag.FlaggedOn, flag.Resolved, flag.ResolvedAt); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ResolveRiskFlag(ctx context.Context, flagID string, resolvedAt time.Time) (model.RiskFlag, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE risk_flags
		SET resolved = true, resolved_at = $1
		WHERE id = $2
		RETURNING `+riskFlagColumns+`
	`, resolvedAt, flagID)
	return scanRiskFlag(row)
}

func (s *Store) ResolveRiskFlags(ctx context.Context, flagIDs []string, resolvedAt time.Time) error {
	if len(flagIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE risk_flags
		SET resolved = true, resolved_at = $1
		WHERE id = ANY($2)
	`, resolvedAt, flagIDs)
	return err
}

func (s *Store) GetRiskRules(ctx context.Context) (model.RiskRules, error) {
	var rules model.RiskRules
	row := s.pool.QueryRow(ctx, `
		SELECT gpa_threshold, attendance_threshold, auto_run_enabled, notifications_enabled, updated_at
		FROM risk_rules
		LIMIT 1
	`)
	err := row.Scan(&rules.GPAThreshold, &rules.AttendanceThreshold, &rules.AutoRunEnabled, &rules.NotificationsEnabled, &rules.UpdatedAt)
	return rules, err
}

func (s *Store) UpdateRiskRules(ctx context.Context, rules model.RiskRules) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE risk_rules
		SET gpa_threshold = $1, attendance_threshold = $2, auto_run_enabled = $3, notifications_enabled = $4, updated_at = $5
	`, rules.GPAThreshold, rules.AttendanceThreshold, rules.AutoRunEnabled, rules.NotificationsEnabled, rules.UpdatedAt)
	return err
}

func (s *Store) ListInterventions(ctx context.Context) ([]model.Intervention, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, faculty_id, intervention_type, notes, status, created_on, updated_on
		FROM interventions
		ORDER BY created_on DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interventions []model.Intervention
	for rows.Next() {
		var intervention model.Intervention
		if err := rows.Scan(&intervention.ID, &intervention.StudentID, &intervention.FacultyID, &intervention.Type, &intervention.Notes, &intervention.Status, &intervention.CreatedOn, &intervention.UpdatedOn); err != nil {
			return nil, err
		}
		interventions = append(interventions, intervention)
	}
	return interventions, rows.Err()
}

func (s *Store) ListInterventionsByStudent(ctx context.Context, studentID string) ([]model.Intervention, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, faculty_id, intervention_type, notes, status, created_on, updated_on
		FROM interventions
		WHERE student_id = $1
		ORDER BY created_on DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interventions []model.Intervention
	for rows.Next() {
		var intervention model.Intervention
		if err := rows.Scan(&intervention.ID, &intervention.StudentID, &intervention.FacultyID, &intervention.Type, &intervention.Notes, &intervention.Status, &intervention.CreatedOn, &intervention.UpdatedOn); err != nil {
			return nil, err
		}
		interventions = append(interventions, intervention)
	}
	return interventions, rows.Err()
}

func (s *Store) CreateIntervention(ctx context.Context, intervention model.Intervention) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interventions (id, student_id, faculty_id, intervention_type, notes, status, created_on, updated_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, intervention.ID, intervention.StudentID, intervention.FacultyID, intervention.Type, intervention.Notes, intervention.Status, intervention.CreatedOn, intervention.UpdatedOn)
	return err
}

func (s *Store) ListFeedback(ctx context.Context) ([]model.Feedback, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, course_id, feedback_text, sentiment, sentiment_score, submitted_on, analyzed_on
		FROM feedback
		ORDER BY submitted_on DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feedbacks []model.Feedback
	for rows.Next() {
		var feedback model.Feedback
		if err := rows.Scan(&feedback.ID, &feedback.StudentID, &feedback.CourseID, &feedback.Text, &feedback.Sentiment, &feedback.SentimentScore, &feedback.SubmittedOn, &feedback.AnalyzedOn); err != nil {
			return nil, err
		}
		feedbacks = append(feedbacks, feedback)
	}
	return feedbacks, rows.Err()
}

func (s *Store) ListFeedbackByStudent(ctx context.Context, studentID string) ([]model.Feedback, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, course_id, feedback_text, sentiment, sentiment_score, submitted_on, analyzed_on
		FROM feedback
		WHERE student_id = $1
		ORDER BY submitted_on DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feedbacks []model.Feedback
	for rows.Next() {
		var feedback model.Feedback
		if err := rows.Scan(&feedback.ID, &feedback.StudentID, &feedback.CourseID, &feedback.Text, &feedback.Sentiment, &feedback.SentimentScore, &feedback.SubmittedOn, &feedback.AnalyzedOn); err != nil {
			return nil, err
		}
		feedbacks = append(feedbacks, feedback)
	}
	return feedbacks, rows.Err()
}

func (s *Store) CreateFeedback(ctx context.Context, feedback model.Feedback) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback (id, student_id, course_id, feedback_text, sentiment, sentiment_score, submitted_on, analyzed_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, feedback.ID, feedback.StudentID, feedback.CourseID, feedback.Text, feedback.Sentiment, feedback.SentimentScore, feedback.SubmittedOn, feedback.AnalyzedOn)
	return err
}

func (s *Store) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	var stats model.DashboardStats
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE risk_flagged),
		       COALESCE(AVG(avg_gpa), 0),
		       COALESCE(AVG(avg_attendance), 0)
		FROM students
	`)
	err := row.Scan(&stats.TotalStudents, &stats.FlaggedStudents, &stats.AvgGPA, &stats.AvgAttendance)
	return stats, err
}

func (s *Store) GPATrends(ctx context.Context) ([]model.GPATrend, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT 'Sem ' || semester, COALESCE(AVG(gpa), 0)
		FROM enrollments
		WHERE gpa IS NOT NULL
		GROUP BY semester
		ORDER BY semester
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trends []model.GPATrend
	for rows.Next() {
		var trend model.GPATrend
		if err := rows.Scan(&trend.Semester, &trend.AvgGPA); err != nil {
			return nil, err
		}
		trends = append(trends, trend)
	}
	return trends, rows.Err()
}

func (s *Store) AttendanceTrends(ctx context.Context) ([]model.AttendanceTrend, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(date_trunc('month', attendance_date), 'Mon YYYY'),
		       100.0 * COUNT(*) FILTER (WHERE status IN ('present', 'late')) / COUNT(*)
		FROM attendance
		GROUP BY date_trunc('month', attendance_date)
		ORDER BY date_trunc('month', attendance_date)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trends []model.AttendanceTrend
	for rows.Next() {
		var trend model.AttendanceTrend
		if err := rows.Scan(&trend.Month, &trend.AvgAttendance); err != nil {
			return nil, err
		}
		trends = append(trends, trend)
	}
	return trends, rows.Err()
}

func (s *Store) RiskSummary(ctx context.Context) ([]model.RiskSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT reason, COUNT(*)
		FROM risk_flags
		WHERE resolved = false
		GROUP BY reason
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.RiskSummary
	for rows.Next() {
		var summary model.RiskSummary
		if err := rows.Scan(&summary.Reason, &summary.Count); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
