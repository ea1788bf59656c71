package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/itsm-core/incident-engine/internal/auth"
	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/repository"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

// MemberSeeder persists members outside the regular write path.
type MemberSeeder interface {
	SaveMember(member *domain.Member) error
}

// AuthService coordinates member login.
type AuthService struct {
	directory  repository.DirectoryRepository
	tokenMgr   *auth.TokenManager
	passwords  auth.PasswordHasher
	cfg        config.AuthConfig
	logger     *zap.Logger
	now        Clock
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	Directory repository.DirectoryRepository
	Logger    *zap.Logger
	Clock     Clock
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	now := deps.Clock
	if now == nil {
		now = systemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		directory:  deps.Directory,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.App.Name, cfg.Auth.AccessTokenTTLMinutes),
		passwords:  auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		cfg:        cfg.Auth,
		logger:     logger,
		now:        now,
	}
}

// Login authenticates a member and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Member, string, time.Time, error) {
	member, err := s.directory.GetMemberByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !member.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("member inactive")
	}
	if err := s.passwords.Verify(member.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	token, exp, err := s.tokenMgr.GenerateToken(member)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return member, token, exp, nil
}

// EnsureBootstrapAdmin seeds the configured admin when it does not exist yet.
// It is a no-op unless both bootstrap email and password are configured.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, seeder MemberSeeder) (*domain.Member, error) {
	email := strings.TrimSpace(s.cfg.BootstrapAdminEmail)
	if email == "" || s.cfg.BootstrapAdminPass == "" || seeder == nil {
		return nil, nil
	}
	existing, err := s.directory.GetMemberByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := s.passwords.Hash(s.cfg.BootstrapAdminPass)
	if err != nil {
		return nil, err
	}
	now := s.now()
	member := &domain.Member{
		ID:           uuid.NewString(),
		OrgID:        s.cfg.BootstrapOrgID,
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         domain.MemberRoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := seeder.SaveMember(member); err != nil {
		return nil, err
	}
	s.logger.Info("bootstrap admin seeded", zap.String("org_id", member.OrgID), zap.String("member_id", member.ID))
	return member, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
