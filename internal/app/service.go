package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"qdamono/server/internal/auth"
	"qdamono/server/internal/authpw"
	"qdamono/server/internal/projects"
	"qdamono/server/internal/rbac"
	"qdamono/server/internal/store"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Session struct {
	UserID   string
	UserName string
	JTI      string
}

type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
	User      store.User
}

// Service backs the REST surface: accounts, sessions and project listings.
type Service struct {
	store    store.Store
	sessions Pinger
	gate     *auth.Gate
	accounts *authpw.Service
	projects *projects.Repository
}

func New(st store.Store, sessions Pinger, gate *auth.Gate, accounts *authpw.Service, repo *projects.Repository) *Service {
	return &Service{
		store:    st,
		sessions: sessions,
		gate:     gate,
		accounts: accounts,
		projects: repo,
	}
}

// Ping checks the document store and the session store.
func (s *Service) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.store.Ping(ctx),
		"sessions": s.sessions.Ping(ctx),
	}
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return store.User{}, accountError(err)
	}
	return user, nil
}

// SignIn verifies credentials and issues an access token.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (IssuedSession, error) {
	user, err := s.accounts.SignIn(ctx, req)
	if err != nil {
		return IssuedSession{}, accountError(err)
	}
	token, expiresAt, err := s.gate.Issue(ctx, user.ID, user.DisplayName)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("issue session: %w", err)
	}
	return IssuedSession{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	identity, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: identity.UserID, UserName: identity.UserName, JTI: identity.JTI}, nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if err := s.gate.Revoke(ctx, session.JTI); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Service) ListProjects(ctx context.Context, session Session) ([]projects.AccessibleProject, error) {
	return s.projects.ListAccessible(ctx, session.UserID)
}

// GetProject returns the expanded project when the caller can read it.
func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (store.Project, rbac.Level, error) {
	project, level, err := s.projects.Get(ctx, projectID, session.UserID, true)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, projects.ErrUnauthorized) {
		return store.Project{}, rbac.LevelUnauthorized, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	}
	if err != nil {
		return store.Project{}, rbac.LevelUnauthorized, err
	}
	return project, level, nil
}

// PrivilegeGrant is one of the caller's grants as the REST API reports it.
// Privilege uses the same level names as the project listing.
type PrivilegeGrant struct {
	ProjectID string     `json:"project_id"`
	Privilege rbac.Level `json:"privilege"`
	GrantedAt time.Time  `json:"granted_at"`
}

func (s *Service) ListPrivileges(ctx context.Context, session Session) ([]PrivilegeGrant, error) {
	grants, err := s.projects.ListPrivileges(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]PrivilegeGrant, 0, len(grants))
	for _, grant := range grants {
		items = append(items, PrivilegeGrant{
			ProjectID: grant.ProjectID,
			Privilege: rbac.Normalize(grant.Level),
			GrantedAt: grant.GrantedAt,
		})
	}
	return items, nil
}

func accountError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrInvalidInput):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	default:
		return err
	}
}
