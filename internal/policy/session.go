package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/S-Kamath-01/InsightFlow-Edu/internal/crypto"
)

type Role string

const (
	RoleFaculty      Role = "faculty"
	RoleAcademicHead Role = "academic_head"
	RoleIT           Role = "it"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleFaculty:
		return RoleFaculty, nil
	case RoleAcademicHead:
		return RoleAcademicHead, nil
	case RoleIT:
		return RoleIT, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Session is issued on successful authentication. Role never changes for
// the session's lifetime; the session stays valid while it holds a token.
type Session struct {
	SubjectID string
	Role      Role
	Token     string
	ExpiresAt *time.Time
}

func (s Session) ValidAt(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}

type Credentials struct {
	Username string
	Password string
}

// Credential is the stored record the credential collaborator returns.
type Credential struct {
	SubjectID    string
	PasswordHash string
	Role         Role
}

// ErrCredentialNotFound is what a CredentialStore returns for an unknown
// username. Authenticate folds it into ErrInvalidCredentials.
var ErrCredentialNotFound = errors.New("credential not found")

type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (Credential, error)
}

type SessionPolicy struct {
	Store    CredentialStore
	Verify   func(hash, password string) error
	TokenTTL time.Duration
	Now      func() time.Time
	NewToken func() (string, error)
}

func NewSessionPolicy(store CredentialStore) *SessionPolicy {
	return &SessionPolicy{
		Store:    store,
		Verify:   crypto.CheckPassword,
		Now:      time.Now,
		NewToken: crypto.NewToken,
	}
}

// Authenticate looks up the username and verifies the password. Unknown user
// and wrong password produce the same error.
func (p *SessionPolicy) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return Session{}, ErrInvalidCredentials
	}

	record, err := p.Store.FindByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := p.Verify(record.PasswordHash, creds.Password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := p.NewToken()
	if err != nil {
		return Session{}, err
	}

	session := Session{
		SubjectID: record.SubjectID,
		Role:      record.Role,
		Token:     token,
	}
	if p.TokenTTL > 0 {
		expiry := p.Now().UTC().Add(p.TokenTTL)
		session.ExpiresAt = &expiry
	}
	return session, nil
}

// Authorize applies the access decision table. An empty required set means
// any authenticated role. The session is never mutated; on
// ErrUnauthenticated the caller is expected to discard its stored session.
func (p *SessionPolicy) Authorize(session Session, required ...Role) error {
	if !session.ValidAt(p.Now()) {
		return ErrUnauthenticated
	}
	if len(required) == 0 {
		return nil
	}
	for _, role := range required {
		if session.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

// Invalidate clears the session token. Idempotent: invalidating an
// already-invalid session is a no-op.
func (p *SessionPolicy) Invalidate(session *Session) {
	if session == nil {
		return
	}
	session.Token = ""
	session.ExpiresAt = nil
}
