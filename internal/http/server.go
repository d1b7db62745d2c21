package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/auth"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/config"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/crypto"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/importer"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/model"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/policy"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/repository"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/risk"
	"github.com/S-Kamath-01/InsightFlow-Edu/internal/sentiment"
)

// Store is the persistence contract the handlers depend on. The pgx-backed
// repository implements it; tests run against an in-memory fake.
type Store interface {
	FindByUsername(ctx context.Context, username string) (policy.Credential, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	ListFaculty(ctx context.Context, limit int) ([]model.User, error)

	CreateRefreshSession(ctx context.Context, session model.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error
	RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error

	ListStudents(ctx context.Context, filter repository.StudentFilter) ([]model.Student, int, error)
	GetStudent(ctx context.Context, studentID string) (model.Student, error)
	CreateStudent(ctx context.Context, student model.Student) error
	ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error)
	ListAttendanceByStudent(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error)
	ListCourses(ctx context.Context) ([]model.Course, error)

	ListRiskFlags(ctx context.Context) ([]model.RiskFlag, error)
	ResolveRiskFlag(ctx context.Context, flagID string, resolvedAt time.Time) (model.RiskFlag, error)
	GetRiskRules(ctx context.Context) (model.RiskRules, error)
	UpdateRiskRules(ctx context.Context, rules model.RiskRules) error

	ListInterventions(ctx context.Context) ([]model.Intervention, error)
	ListInterventionsByStudent(ctx context.Context, studentID string) ([]model.Intervention, error)
	CreateIntervention(ctx context.Context, intervention model.Intervention) error

	ListFeedback(ctx context.Context) ([]model.Feedback, error)
	ListFeedbackByStudent(ctx context.Context, studentID string) ([]model.Feedback, error)
	CreateFeedback(ctx context.Context, feedback model.Feedback) error

	DashboardStats(ctx context.Context) (model.DashboardStats, error)
	GPATrends(ctx context.Context) ([]model.GPATrend, error)
	AttendanceTrends(ctx context.Context) ([]model.AttendanceTrend, error)
	RiskSummary(ctx context.Context) ([]model.RiskSummary, error)
}

type Server struct {
	cfg      config.Config
	store    Store
	sessions *policy.SessionPolicy
	runner   *risk.Runner
	analyze  sentiment.Classifier
	feedback sentiment.Classifier
	redis    *redis.Client
}

func NewServer(cfg config.Config, store Store, runner *risk.Runner, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: policy.NewSessionPolicy(store),
		runner:   runner,
		analyze:  sentiment.NewAnalyze(),
		feedback: sentiment.NewFeedback(),
		redis:    redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	anyRole := s.requireRoles()
	adminOnly := s.requireRoles(policy.RoleAcademicHead, policy.RoleIT)

	r.With(s.authMiddleware, anyRole).Get("/students", s.handleListStudents)
	r.With(s.authMiddleware, anyRole).Get("/students/{studentID}", s.handleGetStudent)
	r.With(s.authMiddleware, anyRole).Get("/courses", s.handleListCourses)
	r.With(s.authMiddleware, adminOnly).Get("/faculty", s.handleListFaculty)

	r.With(s.authMiddleware, anyRole).Get("/risk-flags", s.handleListRiskFlags)
	r.With(s.authMiddleware, anyRole).Post("/risk-flags/{flagID}/resolve", s.handleResolveRiskFlag)
	r.With(s.authMiddleware, anyRole).Post("/run-risk", s.handleRunRisk)
	r.With(s.authMiddleware, anyRole).Get("/risk-rules", s.handleGetRiskRules)
	r.With(s.authMiddleware, adminOnly).Put("/risk-rules", s.handlePutRiskRules)

	r.With(s.authMiddleware, anyRole).Get("/interventions", s.handleListInterventions)
	r.With(s.authMiddleware, anyRole).Post("/interventions", s.handleCreateIntervention)

	r.With(s.authMiddleware, anyRole).Get("/feedback", s.handleListFeedback)
	r.With(s.authMiddleware, anyRole).Post("/feedback", s.handleCreateFeedback)
	r.With(s.authMiddleware, anyRole).Post("/analyze", s.handleAnalyze)

	r.With(s.authMiddleware, anyRole).Get("/dashboard/stats", s.handleDashboardStats)
	r.With(s.authMiddleware, anyRole).Get("/dashboard/gpa-trends", s.handleGPATrends)
	r.With(s.authMiddleware, anyRole).Get("/dashboard/attendance-trends", s.handleAttendanceTrends)
	r.With(s.authMiddleware, anyRole).Get("/dashboard/risk-summary", s.handleRiskSummary)

	r.With(s.authMiddleware, adminOnly).Post("/import/csv", s.handleImportCSV)

	return r
}

// Auth

type sessionKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		role, err := policy.ParseRole(claims.Role)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		session := policy.Session{SubjectID: claims.UserID, Role: role, Token: token}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (policy.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(policy.Session)
	return session, ok
}

func (s *Server) requireRoles(roles ...policy.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, _ := sessionFromContext(r.Context())
			if err := s.sessions.Authorize(session, roles...); err != nil {
				if errors.Is(err, policy.ErrForbidden) {
					writeError(w, http.StatusForbidden, "forbidden")
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authentication handlers

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	Role         string      `json:"role"`
	User         userSummary `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	session, err := s.sessions.Authenticate(r.Context(), policy.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, policy.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), session.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), user, session.Role, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		Role:         string(session.Role),
		User:         mapUserSummary(user),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	tokenHash := crypto.HashToken(req.RefreshToken)
	refresh, err := s.store.GetRefreshSession(r.Context(), tokenHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if refresh.RevokedAt != nil || refresh.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), refresh.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}
	role, err := policy.ParseRole(user.Role)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}

	if err := s.store.RevokeRefreshSession(r.Context(), refresh.ID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), user, role, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		Role:         string(role),
		User:         mapUserSummary(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	_ = s.store.RevokeRefreshSessionsByUser(r.Context(), session.SubjectID, time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	user, err := s.store.GetUserByID(r.Context(), session.SubjectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

func (s *Server) issueTokens(ctx context.Context, user model.User, role policy.Role, userAgent, ip string) (string, string, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: user.ID,
		Role:   string(role),
	})
	if err != nil {
		return "", "", err
	}

	refreshToken, err := crypto.NewToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	refresh := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if userAgent != "" {
		refresh.UserAgent = &userAgent
	}
	if ip != "" {
		refresh.IPAddress = &ip
	}
	if err := s.store.CreateRefreshSession(ctx, refresh); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Students

type studentSummary struct {
	ID              string  `json:"id"`
	RollNumber      string  `json:"rollNumber"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	Email           string  `json:"email"`
	Phone           *string `json:"phone,omitempty"`
	Department      string  `json:"department"`
	EnrollmentYear  int     `json:"enrollmentYear"`
	CurrentSemester int     `json:"currentSemester"`
	AvgGPA          float64 `json:"avgGpa"`
	AvgAttendance   float64 `json:"avgAttendance"`
	RiskFlagged     bool    `json:"riskFlagged"`
}

type studentsListResponse struct {
	Data  []studentSummary `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repository.StudentFilter{
		Search:     strings.TrimSpace(query.Get("search")),
		Department: strings.TrimSpace(query.Get("department")),
		Page:       1,
		Limit:      10,
	}
	if raw := query.Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Page = parsed
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	students, total, err := s.store.ListStudents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]studentSummary, 0, len(students))
	for _, student := range students {
		summaries = append(summaries, mapStudentSummary(student))
	}
	writeJSON(w, http.StatusOK, studentsListResponse{
		Data:  summaries,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}

type studentDetailResponse struct {
	Student       studentSummary        `json:"student"`
	Enrollments   []enrollmentSummary   `json:"enrollments"`
	Attendance    []attendanceSummary   `json:"attendance"`
	Interventions []interventionSummary `json:"interventions"`
	Feedbacks     []feedbackSummary     `json:"feedbacks"`
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student_id")
		return
	}

	student, err := s.store.GetStudent(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	enrollments, err := s.store.ListEnrollmentsByStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	attendance, err := s.store.ListAttendanceByStudent(r.Context(), studentID, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	interventions, err := s.store.ListInterventionsByStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	feedbacks, err := s.store.ListFeedbackByStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := studentDetailResponse{
		Student:       mapStudentSummary(student),
		Enrollments:   make([]enrollmentSummary, 0, len(enrollments)),
		Attendance:    make([]attendanceSummary, 0, len(attendance)),
		Interventions: make([]interventionSummary, 0, len(interventions)),
		Feedbacks:     make([]feedbackSummary, 0, len(feedbacks)),
	}
	for _, enrollment := range enrollments {
		resp.Enrollments = append(resp.Enrollments, mapEnrollmentSummary(enrollment))
	}
	for _, record := range attendance {
		resp.Attendance = append(resp.Attendance, mapAttendanceSummary(record))
	}
	for _, intervention := range interventions {
		resp.Interventions = append(resp.Interventions, mapInterventionSummary(intervention))
	}
	for _, feedback := range feedbacks {
		resp.Feedbacks = append(resp.Feedbacks, mapFeedbackSummary(feedback))
	}
	writeJSON(w, http.StatusOK, resp)
}

type courseSummary struct {
	ID         string `json:"id"`
	Code       string `json:"courseCode"`
	Name       string `json:"courseName"`
	Department string `json:"department"`
	Credits    int    `json:"credits"`
	Semester   int    `json:"semester"`
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.store.ListCourses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	summaries := make([]courseSummary, 0, len(courses))
	for _, course := range courses {
		summaries = append(summaries, courseSummary{
			ID:         course.ID,
			Code:       course.Code,
			Name:       course.Name,
			Department: course.Department,
			Credits:    course.Credits,
			Semester:   course.Semester,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

type facultySummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Department *string `json:"department,omitempty"`
	Role       string  `json:"role"`
}

func (s *Server) handleListFaculty(w http.ResponseWriter, r *http.Request) {
	faculty, err := s.store.ListFaculty(r.Context(), 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	summaries := make([]facultySummary, 0, len(faculty))
	for _, user := range faculty {
		summaries = append(summaries, facultySummary{
			ID:         user.ID,
			Name:       user.Name,
			Email:      user.Email,
			Department: user.Department,
			Role:       user.Role,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Risk

type riskFlagSummary struct {
	ID            string  `json:"id"`
	StudentID     string  `json:"studentId"`
	Reason        string  `json:"reason"`
	AvgGPA        float64 `json:"avgGpa"`
	AvgAttendance float64 `json:"avgAttendance"`
	FlaggedOn     string  `json:"flaggedOn"`
	Resolved      bool    `json:"resolved"`
}

func (s *Server) handleListRiskFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := s.store.ListRiskFlags(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	summaries := make([]riskFlagSummary, 0, len(flags))
	for _, flag := range flags {
		summaries = append(summaries, mapRiskFlagSummary(flag))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleResolveRiskFlag(w http.ResponseWriter, r *http.Request) {
	flagID := chi.URLParam(r, "flagID")
	if flagID == "" {
		writeError(w, http.StatusBadRequest, "missing_flag_id")
		return
	}
	flag, err := s.store.ResolveRiskFlag(r.Context(), flagID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "flag_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapRiskFlagSummary(flag))
}

type runRiskRequest struct {
	GPAThreshold        *float64 `json:"gpaThreshold"`
	AttendanceThreshold *float64 `json:"attThreshold"`
}

type runRiskResponse struct {
	Status  string `json:"status"`
	Flagged int    `json:"flagged"`
	Message string `json:"message"`
}

func (s *Server) handleRunRisk(w http.ResponseWriter, r *http.Request) {
	req := runRiskRequest{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
	}

	report, err := s.runner.Run(r.Context(), req.GPAThreshold, req.AttendanceThreshold)
	if err != nil {
		var invalid *policy.InvalidMetricError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, "invalid_metric")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, runRiskResponse{
		Status:  "ok",
		Flagged: report.Flagged,
		Message: "Risk detection completed. " + strconv.Itoa(report.Flagged) + " students flagged.",
	})
}

type riskRulesPayload struct {
	GPAThreshold         float64 `json:"gpaThreshold"`
	AttendanceThreshold  float64 `json:"attendanceThreshold"`
	AutoRunEnabled       bool    `json:"autoRunEnabled"`
	NotificationsEnabled bool    `json:"notificationsEnabled"`
}

func (s *Server) handleGetRiskRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.GetRiskRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, riskRulesPayload{
		GPAThreshold:         rules.GPAThreshold,
		AttendanceThreshold:  rules.AttendanceThreshold,
		AutoRunEnabled:       rules.AutoRunEnabled,
		NotificationsEnabled: rules.NotificationsEnabled,
	})
}

func (s *Server) handlePutRiskRules(w http.ResponseWriter, r *http.Request) {
	var req riskRulesPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.GPAThreshold < 0 || req.GPAThreshold > 4 || req.AttendanceThreshold < 0 || req.AttendanceThreshold > 100 {
		writeError(w, http.StatusBadRequest, "invalid_thresholds")
		return
	}

	rules := model.RiskRules{
		GPAThreshold:         req.GPAThreshold,
		AttendanceThreshold:  req.AttendanceThreshold,
		AutoRunEnabled:       req.AutoRunEnabled,
		NotificationsEnabled: req.NotificationsEnabled,
		UpdatedAt:            time.Now().UTC(),
	}
	if err := s.store.UpdateRiskRules(r.Context(), rules); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Interventions

type interventionSummary struct {
	ID        string  `json:"id"`
	StudentID string  `json:"studentId"`
	FacultyID string  `json:"facultyId"`
	Type      string  `json:"interventionType"`
	Notes     string  `json:"notes"`
	Status    string  `json:"status"`
	CreatedOn string  `json:"createdOn"`
	UpdatedOn *string `json:"updatedOn,omitempty"`
}

func (s *Server) handleListInterventions(w http.ResponseWriter, r *http.Request) {
	interventions, err := s.store.ListInterventions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	summaries := make([]interventionSummary, 0, len(interventions))
	for _, intervention := range interventions {
		summaries = append(summaries, mapInterventionSummary(intervention))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createInterventionRequest struct {
	StudentID string `json:"studentId"`
	FacultyID string `json:"facultyId"`
	Type      string `json:"interventionType"`
	Notes     string `json:"notes"`
}

func (s *Server) handleCreateIntervention(w http.ResponseWriter, r *http.Request) {
	var req createInterventionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if req.StudentID == "" || req.FacultyID == "" || req.Notes == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if !validInterventionType(req.Type) {
		writeError(w, http.StatusBadRequest, "invalid_intervention_type")
		return
	}
	if _, err := s.store.GetStudent(r.Context(), req.StudentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	intervention := model.Intervention{
		ID:        uuid.NewString(),
		StudentID: req.StudentID,
		FacultyID: req.FacultyID,
		Type:      req.Type,
		Notes:     req.Notes,
		Status:    "pending",
		CreatedOn: time.Now().UTC(),
	}
	if err := s.store.CreateIntervention(r.Context(), intervention); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":        intervention.ID,
		"createdOn": intervention.CreatedOn.Format(time.RFC3339),
	})
}

func validInterventionType(interventionType string) bool {
	switch interventionType {
	case "academic", "behavioral", "attendance", "other":
		return true
	default:
		return false
	}
}

// Feedback

type feedbackSummary struct {
	ID             string   `json:"id"`
	StudentID      string   `json:"studentId"`
	CourseID       string   `json:"courseId"`
	Text           string   `json:"feedbackText"`
	Sentiment      *string  `json:"sentiment,omitempty"`
	SentimentScore *float64 `json:"sentimentScore,omitempty"`
	SubmittedOn    string   `json:"submittedOn"`
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	feedbacks, err := s.store.ListFeedback(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	summaries := make([]feedbackSummary, 0, len(feedbacks))
	for _, feedback := range feedbacks {
		summaries = append(summaries, mapFeedbackSummary(feedback))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createFeedbackRequest struct {
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
	Text      string `json:"feedbackText"`
}

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req createFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.StudentID == "" || req.CourseID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	result := s.feedback.Classify(req.Text)
	now := time.Now().UTC()
	feedback := model.Feedback{
		ID:             uuid.NewString(),
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		Text:           req.Text,
		Sentiment:      &result.Sentiment,
		SentimentScore: &result.Score,
		SubmittedOn:    now,
		AnalyzedOn:     &now,
	}
	if err := s.store.CreateFeedback(r.Context(), feedback); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":             feedback.ID,
		"sentiment":      result.Sentiment,
		"sentimentScore": result.Score,
	})
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing_text")
		return
	}
	writeJSON(w, http.StatusOK, s.analyze.Classify(req.Text))
}

// Dashboard

type dashboardStatsPayload struct {
	TotalStudents   int     `json:"totalStudents"`
	FlaggedStudents int     `json:"flaggedStudents"`
	AvgGPA          float64 `json:"avgGpa"`
	AvgAttendance   float64 `json:"avgAttendance"`
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	s.respondCached(w, r, "dashboard:stats", func(ctx context.Context) (interface{}, error) {
		stats, err := s.store.DashboardStats(ctx)
		if err != nil {
			return nil, err
		}
		return dashboardStatsPayload{
			TotalStudents:   stats.TotalStudents,
			FlaggedStudents: stats.FlaggedStudents,
			AvgGPA:          stats.AvgGPA,
			AvgAttendance:   stats.AvgAttendance,
		}, nil
	})
}

func (s *Server) handleGPATrends(w http.ResponseWriter, r *http.Request) {
	s.respondCached(w, r, "dashboard:gpa-trends", func(ctx context.Context) (interface{}, error) {
		trends, err := s.store.GPATrends(ctx)
		if err != nil {
			return nil, err
		}
		payload := make([]map[string]interface{}, 0, len(trends))
		for _, trend := range trends {
			payload = append(payload, map[string]interface{}{"semester": trend.Semester, "avgGpa": trend.AvgGPA})
		}
		return payload, nil
	})
}

func (s *Server) handleAttendanceTrends(w http.ResponseWriter, r *http.Request) {
	s.respondCached(w, r, "dashboard:attendance-trends", func(ctx context.Context) (interface{}, error) {
		trends, err := s.store.AttendanceTrends(ctx)
		if err != nil {
			return nil, err
		}
		payload := make([]map[string]interface{}, 0, len(trends))
		for _, trend := range trends {
			payload = append(payload, map[string]interface{}{"month": trend.Month, "avgAttendance": trend.AvgAttendance})
		}
		return payload, nil
	})
}

func (s *Server) handleRiskSummary(w http.ResponseWriter, r *http.Request) {
	s.respondCached(w, r, "dashboard:risk-summary", func(ctx context.Context) (interface{}, error) {
		summaries, err := s.store.RiskSummary(ctx)
		if err != nil {
			return nil, err
		}
		payload := make([]map[string]interface{}, 0, len(summaries))
		for _, summary := range summaries {
			payload = append(payload, map[string]interface{}{"reason": summary.Reason, "count": summary.Count})
		}
		return payload, nil
	})
}

// respondCached serves a dashboard aggregate out of redis when available.
// Without redis every request hits the store directly.
func (s *Server) respondCached(w http.ResponseWriter, r *http.Request, key string, fetch func(context.Context) (interface{}, error)) {
	ctx := r.Context()
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	payload, err := fetch(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if s.redis != nil {
		_ = s.redis.Set(ctx, key, data, s.cfg.DashboardCacheTTL).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import

type importResponse struct {
	Errors   []importer.RowError `json:"errors"`
	Inserted int                 `json:"inserted"`
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	result, err := importer.ParseStudents(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_csv")
		return
	}

	resp := importResponse{Errors: result.Errors}
	if resp.Errors == nil {
		resp.Errors = []importer.RowError{}
	}
	now := time.Now().UTC()
	for _, parsed := range result.Students {
		student := parsed.Student
		student.ID = uuid.NewString()
		student.CreatedAt = now
		student.UpdatedAt = now
		if err := s.store.CreateStudent(r.Context(), student); err != nil {
			resp.Errors = append(resp.Errors, importer.RowError{Row: parsed.Row, Message: "insert failed"})
			continue
		}
		resp.Inserted++
	}
	writeJSON(w, http.StatusOK, resp)
}

// Mappers

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
}

func mapStudentSummary(student model.Student) studentSummary {
	return studentSummary{
		ID:              student.ID,
		RollNumber:      student.RollNumber,
		FirstName:       student.FirstName,
		LastName:        student.LastName,
		Email:           student.Email,
		Phone:           student.Phone,
		Department:      student.Department,
		EnrollmentYear:  student.EnrollmentYear,
		CurrentSemester: student.CurrentSemester,
		AvgGPA:          student.AvgGPA,
		AvgAttendance:   student.AvgAttendance,
		RiskFlagged:     student.RiskFlagged,
	}
}

type enrollmentSummary struct {
	ID         string   `json:"id"`
	CourseID   string   `json:"courseId"`
	Semester   int      `json:"semester"`
	Grade      *string  `json:"grade,omitempty"`
	GPA        *float64 `json:"gpa,omitempty"`
	Status     string   `json:"status"`
	EnrolledOn string   `json:"enrolledOn"`
}

func mapEnrollmentSummary(enrollment model.Enrollment) enrollmentSummary {
	return enrollmentSummary{
		ID:         enrollment.ID,
		CourseID:   enrollment.CourseID,
		Semester:   enrollment.Semester,
		Grade:      enrollment.Grade,
		GPA:        enrollment.GPA,
		Status:     enrollment.Status,
		EnrolledOn: enrollment.EnrolledOn.Format(time.RFC3339),
	}
}

type attendanceSummary struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	Date     string `json:"date"`
	Status   string `json:"status"`
}

func mapAttendanceSummary(record model.AttendanceRecord) attendanceSummary {
	return attendanceSummary{
		ID:       record.ID,
		CourseID: record.CourseID,
		Date:     record.Date.Format("2006-01-02"),
		Status:   record.Status,
	}
}

func mapInterventionSummary(intervention model.Intervention) interventionSummary {
	summary := interventionSummary{
		ID:        intervention.ID,
		StudentID: intervention.StudentID,
		FacultyID: intervention.FacultyID,
		Type:      intervention.Type,
		Notes:     intervention.Notes,
		Status:    intervention.Status,
		CreatedOn: intervention.CreatedOn.Format(time.RFC3339),
	}
	if intervention.UpdatedOn != nil {
		updated := intervention.UpdatedOn.Format(time.RFC3339)
		summary.UpdatedOn = &updated
	}
	return summary
}

func mapFeedbackSummary(feedback model.Feedback) feedbackSummary {
	return feedbackSummary{
		ID:             feedback.ID,
		StudentID:      feedback.StudentID,
		CourseID:       feedback.CourseID,
		Text:           feedback.Text,
		Sentiment:      feedback.Sentiment,
		SentimentScore: feedback.SentimentScore,
		SubmittedOn:    feedback.SubmittedOn.Format(time.RFC3339),
	}
}

func mapRiskFlagSummary(flag model.RiskFlag) riskFlagSummary {
	return riskFlagSummary{
		ID:            flag.ID,
		StudentID:     flag.StudentID,
		Reason:        flag.Reason,
		AvgGPA:        flag.AvgGPA,
		AvgAttendance: flag.AvgAttendance,
		FlaggedOn:     flag.FlaggedOn.Format(time.RFC3339),
		Resolved:      flag.Resolved,
	}
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ""
}
