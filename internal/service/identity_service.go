package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-it/helpdesk-service/internal/auth"
	"github.com/campus-it/helpdesk-service/internal/domain"
	"github.com/campus-it/helpdesk-service/internal/repository"
	apperrors "github.com/campus-it/helpdesk-service/pkg/util"
)

const minPasswordLength = 8

// Credentials are the inputs to password authentication.
type Credentials struct {
	Email    string
	Password string
}

// RegisterInput describes a self-service signup. New accounts are TEACHER.
type RegisterInput struct {
	Email      string
	FullName   string
	Password   string
	Department *string
}

// Session is a freshly issued access token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// IdentityService coordinates registration, login and user administration.
// It is the UserDirectory the ticket store consults.
type IdentityService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// IdentityDependencies encapsulates requirements for the identity service.
type IdentityDependencies struct {
	UserRepo     repository.UserRepository
	TokenManager *auth.TokenManager
	BcryptCost   int
	Logger       *zap.Logger
}

// NewIdentityService builds the service.
func NewIdentityService(deps IdentityDependencies) *IdentityService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{
		users:      deps.UserRepo,
		tokenMgr:   deps.TokenManager,
		bcryptCost: deps.BcryptCost,
		logger:     logger,
	}
}

// Register creates a TEACHER account and signs it in.
func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, apperrors.NewValidationError("full_name is required", nil)
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.NewValidationError("password too short", map[string]any{"min": minPasswordLength})
	}
	if len(input.Password) > auth.MaxPasswordBytes {
		return nil, apperrors.NewValidationError("password too long", map[string]any{"max_bytes": auth.MaxPasswordBytes})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Email:        email,
		FullName:     fullName,
		Department:   trimOptional(input.Department),
		Role:         domain.RoleTeacher,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login authenticates with email and password and issues a token.
func (s *IdentityService) Login(ctx context.Context, credentials Credentials) (*Session, error) {
	user, err := s.verify(ctx, credentials)
	if err != nil {
		return nil, err
	}
	s.upgradeHash(ctx, user, credentials.Password)
	return s.issue(user)
}

// Authenticate checks credentials and returns the caller's identity.
func (s *IdentityService) Authenticate(ctx context.Context, credentials Credentials) (string, domain.Role, error) {
	user, err := s.verify(ctx, credentials)
	if err != nil {
		return "", "", err
	}
	return user.ID, user.Role, nil
}

// GetUser returns a user by id.
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// UpdateRole changes a user's role. Only admins may do this, and not on
// their own account.
func (s *IdentityService) UpdateRole(ctx context.Context, actor domain.Actor, userID string, role domain.Role) (*domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	if actor.ID == userID {
		return nil, apperrors.NewValidationError("admins cannot change their own role", nil)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}
	old := user.Role
	user.Role = role
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user role changed",
		zap.String("user_id", user.ID),
		zap.String("actor_id", actor.ID),
		zap.String("old_role", string(old)),
		zap.String("new_role", string(role)))
	return user, nil
}

// UpdateDepartment sets or clears a user's department. Users may change their
// own; admins may change anyone's.
func (s *IdentityService) UpdateDepartment(ctx context.Context, actor domain.Actor, userID string, department *string) (*domain.User, error) {
	if actor.ID != userID && actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("not allowed to change this user")
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Department = trimOptional(department)
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetActive enables or disables an account. Admin only; admins cannot
// deactivate themselves.
func (s *IdentityService) SetActive(ctx context.Context, actor domain.Actor, userID string, active bool) (*domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("admin role required")
	}
	if actor.ID == userID && !active {
		return nil, apperrors.NewValidationError("admins cannot deactivate themselves", nil)
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Active = active
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListStaff returns active users who can be assigned tickets.
func (s *IdentityService) ListStaff(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.User, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	active := true
	users, err := s.users.List(ctx, repository.UserFilter{
		Roles:  []domain.Role{domain.RoleITStaff, domain.RoleAdmin},
		Active: &active,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// EnsureAdmin creates an ADMIN account for email unless one already exists.
func (s *IdentityService) EnsureAdmin(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if len(password) < minPasswordLength {
		return apperrors.NewValidationError("bootstrap admin password too short", map[string]any{"min": minPasswordLength})
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	user := &domain.User{
		Email:        email,
		FullName:     "Administrator",
		Role:         domain.RoleAdmin,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	s.logger.Info("bootstrap admin ensured", zap.String("email", email))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *IdentityService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *IdentityService) verify(ctx context.Context, credentials Credentials) (*domain.User, error) {
	invalid := apperrors.NewUnauthorized("invalid credentials")

	email := strings.ToLower(strings.TrimSpace(credentials.Email))
	if email == "" || credentials.Password == "" {
		return nil, invalid
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, credentials.Password); err != nil {
		return nil, invalid
	}
	if !user.Active {
		return nil, apperrors.NewUnauthorized("account disabled")
	}
	return user, nil
}

// upgradeHash re-hashes the password when the configured bcrypt cost has
// changed since it was stored. Failures only cost a log line.
func (s *IdentityService) upgradeHash(ctx context.Context, user *domain.User, password string) {
	if !auth.NeedsRehash(user.PasswordHash, s.bcryptCost) {
		return
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		s.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.Warn("password rehash not saved", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}

func (s *IdentityService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func (s *IdentityService) save(ctx context.Context, user *domain.User) error {
	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return apperrors.NewNotFound("user", map[string]any{"user_id": user.ID})
		case errors.Is(err, repository.ErrDuplicate):
			return apperrors.NewConflict("email already registered", nil)
		default:
			return apperrors.NewInternalError(err)
		}
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.NewValidationError("invalid email", map[string]any{"email": raw})
	}
	return email, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
