package repository

import (
	"context"
	"time"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/policy"
)

type StudentFilter struct {
	Search     string
	Department string
	Page       int
	Limit      int
}

const studentColumns = `id, roll_number, first_name, last_name, email, phone, department, enrollment_year, current_semester, avg_gpa, avg_attendance, risk_flagged, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (model.Student, error) {
	var student model.Student
	err := row.Scan(
		&student.ID,
		&student.RollNumber,
		&student.FirstName,
		&student.LastName,
		&student.Email,
		&student.Phone,
		&student.Department,
		&student.EnrollmentYear,
		&student.CurrentSemester,
		&student.AvgGPA,
		&student.AvgAttendance,
		&student.RiskFlagged,
		&student.CreatedAt,
		&student.UpdatedAt,
	)
	return student, err
}

func (s *Store) ListStudents(ctx context.Context, filter StudentFilter) ([]model.Student, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}
	search := "%" + filter.Search + "%"

	var total int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM students
		WHERE ($1 = '%%' OR first_name ILIKE $1 OR last_name ILIKE $1 OR roll_number ILIKE $1 OR email ILIKE $1)
		  AND ($2 = '' OR department = $2)
	`, search, filter.Department)
	if err := row.Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE ($1 = '%%' OR first_name ILIKE $1 OR last_name ILIKE $1 OR roll_number ILIKE $1 OR email ILIKE $1)
		  AND ($2 = '' OR department = $2)
		ORDER BY roll_number
		LIMIT $3 OFFSET $4
	`, search, filter.Department, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		students = append(students, student)
	}
	return students, total, rows.Err()
}

func (s *Store) GetStudent(ctx context.Context, studentID string) (model.Student, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, studentID)
	return scanStudent(row)
}

func (s *Store) CreateStudent(ctx context.Context, student model.Student) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, student.ID, student.RollNumber, student.FirstName, student.LastName, student.Email, student.Phone,
		student.Department, student.EnrollmentYear, student.CurrentSemester, student.AvgGPA,
		student.AvgAttendance, student.RiskFlagged, student.CreatedAt, student.UpdatedAt)
	return err
}

// ListStudentMetrics returns the evaluation snapshot for every student.
func (s *Store) ListStudentMetrics(ctx context.Context) ([]policy.StudentMetrics, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, avg_gpa, avg_attendance FROM students ORDER BY roll_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []policy.StudentMetrics
	for rows.Next() {
		var m policy.StudentMetrics
		if err := rows.Scan(&m.StudentID, &m.AvgGPA, &m.AvgAttendance); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *Store) SetStudentsRiskFlagged(ctx context.Context, studentIDs []string, flagged bool, updatedAt time.Time) error {
	if len(studentIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE students
		SET risk_flagged = $1, updated_at = $2
		WHERE id = ANY($3)
	`, flagged, updatedAt, studentIDs)
	return err
}

func (s *Store) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_code, course_name, department, credits, semester, created_at
		FROM courses
		ORDER BY course_code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		var course model.Course
		if err := rows.Scan(&course.ID, &course.Code, &course.Name, &course.Department, &course.Credits, &course.Semester, &course.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

func (s *Store) ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, course_id, semester, grade, gpa, status, enrolled_on
		FROM enrollments
		WHERE student_id = $1
		ORDER BY enrolled_on DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []model.Enrollment
	for rows.Next() {
		var enrollment model.Enrollment
		if err := rows.Scan(&enrollment.ID, &enrollment.StudentID, &enrollment.CourseID, &enrollment.Semester, &enrollment.Grade, &enrollment.GPA, &enrollment.Status, &enrollment.EnrolledOn); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, rows.Err()
}

func (s *Store) ListAttendanceByStudent(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, course_id, attendance_date, status, marked_by, created_at
		FROM attendance
		WHERE student_id = $1
		ORDER BY attendance_date DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		var record model.AttendanceRecord
		if err := rows.Scan(&record.ID, &record.StudentID, &record.CourseID, &record.Date, &record.Status, &record.MarkedBy, &record.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
