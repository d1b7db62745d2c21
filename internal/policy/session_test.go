package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCredentialStore struct {
	records map[string]Credential
	err     error
}

func (s *fakeCredentialStore) FindByUsername(_ context.Context, username string) (Credential, error) {
	if s.err != nil {
		return Credential{}, s.err
	}
	record, ok := s.records[username]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return record, nil
}

func testSessionPolicy(store CredentialStore) *SessionPolicy {
	policy := NewSessionPolicy(store)
	policy.Verify = func(hash, password string) error {
		if hash != "hash:"+password {
			return errors.New("mismatch")
		}
		return nil
	}
	policy.NewToken = func() (string, error) { return "token-1", nil }
	return policy
}

func TestAuthenticate(t *testing.T) {
	store := &fakeCredentialStore{records: map[string]Credential{
		"faculty": {SubjectID: "user-1", PasswordHash: "hash:faculty123", Role: RoleFaculty},
	}}
	policy := testSessionPolicy(store)

	session, err := policy.Authenticate(context.Background(), Credentials{Username: "faculty", Password: "faculty123"})
	if err != nil {
		t.Fatalf("authenticate error: %v", err)
	}
	if session.SubjectID != "user-1" || session.Role != RoleFaculty || session.Token == "" {
		t.Fatalf("unexpected session %+v", session)
	}

	// Wrong password and unknown user must be indistinguishable.
	if _, err := policy.Authenticate(context.Background(), Credentials{Username: "faculty", Password: "nope"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := policy.Authenticate(context.Background(), Credentials{Username: "ghost", Password: "faculty123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := policy.Authenticate(context.Background(), Credentials{Username: "", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty username, got %v", err)
	}
}

func TestAuthenticateStoreFailure(t *testing.T) {
	policy := testSessionPolicy(&fakeCredentialStore{err: errors.New("connection refused")})

	_, err := policy.Authenticate(context.Background(), Credentials{Username: "faculty", Password: "faculty123"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAuthenticateSessionExpiry(t *testing.T) {
	store := &fakeCredentialStore{records: map[string]Credential{
		"it": {SubjectID: "user-3", PasswordHash: "hash:it123", Role: RoleIT},
	}}
	policy := testSessionPolicy(store)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	policy.Now = func() time.Time { return now }
	policy.TokenTTL = 15 * time.Minute

	session, err := policy.Authenticate(context.Background(), Credentials{Username: "it", Password: "it123"})
	if err != nil {
		t.Fatalf("authenticate error: %v", err)
	}
	if session.ExpiresAt == nil || !session.ExpiresAt.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}
	if !session.ValidAt(now.Add(14 * time.Minute)) {
		t.Fatalf("expected session valid before expiry")
	}
	if session.ValidAt(now.Add(15 * time.Minute)) {
		t.Fatalf("expected session invalid at expiry")
	}
}

func TestAuthorizeDecisionTable(t *testing.T) {
	policy := NewSessionPolicy(nil)
	valid := Session{SubjectID: "user-1", Role: RoleFaculty, Token: "token-1"}
	invalid := Session{SubjectID: "user-1", Role: RoleFaculty}

	cases := []struct {
		name     string
		session  Session
		required []Role
		expect   error
	}{
		{"invalid session, no roles", invalid, nil, ErrUnauthenticated},
		{"invalid session, with roles", invalid, []Role{RoleFaculty}, ErrUnauthenticated},
		{"valid session, no roles", valid, nil, nil},
		{"valid session, role member", valid, []Role{RoleFaculty, RoleAcademicHead}, nil},
		{"valid session, role not member", valid, []Role{RoleAcademicHead, RoleIT}, ErrForbidden},
	}
	for _, tc := range cases {
		if err := policy.Authorize(tc.session, tc.required...); !errors.Is(err, tc.expect) {
			t.Fatalf("%s: got %v, expected %v", tc.name, err, tc.expect)
		}
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	policy := NewSessionPolicy(nil)
	session := Session{SubjectID: "user-1", Role: RoleFaculty, Token: "token-1"}

	policy.Invalidate(&session)
	if session.Token != "" {
		t.Fatalf("expected token cleared")
	}
	if err := policy.Authorize(session); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after invalidate, got %v", err)
	}

	// Invalidating again is a no-op, never an error.
	policy.Invalidate(&session)
	policy.Invalidate(nil)
}

func TestParseRole(t *testing.T) {
	for raw, expect := range map[string]Role{
		"faculty":       RoleFaculty,
		"ACADEMIC_HEAD": RoleAcademicHead,
		" it ":          RoleIT,
	} {
		role, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("ParseRole(%q) error: %v", raw, err)
		}
		if role != expect {
			t.Fatalf("ParseRole(%q) = %s, expected %s", raw, role, expect)
		}
	}
	if _, err := ParseRole("student"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
