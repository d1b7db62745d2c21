package model

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Department   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

type Student struct {
	ID              string
	RollNumber      string
	FirstName       string
	LastName        string
	Email           string
	Phone           *string
	Department      string
	EnrollmentYear  int
	CurrentSemester int
	AvgGPA          float64
	AvgAttendance   float64
	RiskFlagged     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Course struct {
	ID         string
	Code       string
	Name       string
	Department string
	Credits    int
	Semester   int
	CreatedAt  time.Time
}

type Enrollment struct {
	ID         string
	StudentID  string
	CourseID   string
	Semester   int
	Grade      *string
	GPA        *float64
	Status     string
	EnrolledOn time.Time
}

type AttendanceRecord struct {
	ID        string
	StudentID string
	CourseID  string
	Date      time.Time
	Status    string
	MarkedBy  *string
	CreatedAt time.Time
}

type Intervention struct {
	ID        string
	StudentID string
	FacultyID string
	Type      string
	Notes     string
	Status    string
	CreatedOn time.Time
	UpdatedOn *time.Time
}

type Feedback struct {
	ID             string
	StudentID      string
	CourseID       string
	Text           string
	Sentiment      *string
	SentimentScore *float64
	SubmittedOn    time.Time
	AnalyzedOn     *time.Time
}

// RiskFlag is append-only: flags are never deleted, only marked resolved,
// so the flag history stays auditable.
type RiskFlag struct {
	ID            string
	StudentID     string
	Reason        string
	AvgGPA        float64
	AvgAttendance float64
	FlaggedOn     time.Time
	Resolved      bool
	ResolvedAt    *time.Time
}

// RiskRules is the persisted detection configuration. A single row; the
// thresholds can still be overridden per run.
type RiskRules struct {
	GPAThreshold         float64
	AttendanceThreshold  float64
	AutoRunEnabled       bool
	NotificationsEnabled bool
	UpdatedAt            time.Time
}

type DashboardStats struct {
	TotalStudents   int
	FlaggedStudents int
	AvgGPA          float64
	AvgAttendance   float64
}

type GPATrend struct {
	Semester string
	AvgGPA   float64
}

type AttendanceTrend struct {
	Month         string
	AvgAttendance float64
}

type RiskSummary struct {
	Reason string
	Count  int
}
