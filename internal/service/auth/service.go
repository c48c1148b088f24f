package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/security"
	"github.com/jwalitptl/hospital-api/pkg/slug"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("weak password")
	ErrEmailInUse         = errors.New("email already in use")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrAdminSignUp        = errors.New("admin accounts cannot be self-registered")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrInvalidSession     = errors.New("invalid session")
)

// UserMessage returns the fixed, user-facing text for identity errors.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrWeakPassword):
		return "Password should be at least 8 characters."
	case errors.Is(err, ErrEmailInUse):
		return "This email is already registered."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many attempts. Please try again later."
	case errors.Is(err, ErrAdminSignUp):
		return "This role cannot be registered."
	case errors.Is(err, ErrSessionRevoked), errors.Is(err, ErrInvalidSession):
		return "Your session has expired. Please sign in again."
	default:
		return "Something went wrong. Please try again."
	}
}

const limiterTTL = 15 * time.Minute

type Config struct {
	// SignInPerMinute bounds sign-in attempts per email.
	SignInPerMinute int
}

type Service struct {
	accounts repository.AccountRepository
	creds    repository.CredentialRepository
	sessions repository.SessionStore
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	logger   *logger.Logger

	limitMu  sync.Mutex
	limiters *cache.Cache
	perMin   int
}

func NewService(
	accounts repository.AccountRepository,
	creds repository.CredentialRepository,
	sessions repository.SessionStore,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.SignInPerMinute <= 0 {
		cfg.SignInPerMinute = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		accounts: accounts,
		creds:    creds,
		sessions: sessions,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		logger:   log.With("auth"),
		limiters: cache.New(limiterTTL, 2*limiterTTL),
		perMin:   cfg.SignInPerMinute,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a patient or doctor. Doctors start with a pending profile.
func (s *Service) SignUp(ctx context.Context, req *model.SignUpRequest) (*model.Account, error) {
	if req.Role == model.RoleAdmin {
		return nil, ErrAdminSignUp
	}
	return s.register(ctx, req)
}

// CreateAdmin is the only way an admin account comes into existence.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*model.Account, error) {
	return s.register(ctx, &model.SignUpRequest{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     model.RoleAdmin,
	})
}

func (s *Service) register(ctx context.Context, req *model.SignUpRequest) (*model.Account, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Password) < security.MinPasswordLen {
		return nil, ErrWeakPassword
	}
	if req.Role != model.RoleAdmin {
		if err := validator.Validate(req); err != nil {
			return nil, err
		}
	} else if req.Name == "" || req.Email == "" {
		return nil, fmt.Errorf("name and email are required")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, ErrWeakPassword
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &model.Account{
		Base:  model.Base{ID: uuid.New()},
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	}
	if req.Phone != "" {
		phone := req.Phone
		account.Phone = &phone
	}
	cred := &model.Credential{Email: req.Email, PasswordHash: hash}

	var profile *model.DoctorProfile
	if req.Role == model.RoleDoctor {
		profile = &model.DoctorProfile{
			Slug:            slug.ForDoctor(req.Name, account.ID),
			Name:            req.Name,
			Specialty:       req.Specialty,
			Phone:           req.Phone,
			Email:           req.Email,
			Address:         req.Address,
			Qualifications:  req.Qualifications,
			ExperienceYears: req.ExperienceYears,
			ConsultationFee: req.ConsultationFee,
			Bio:             req.Bio,
			Status:          model.DoctorStatusPending,
			AvailableSlots:  pq.StringArray{},
		}
	}

	if err := s.accounts.Register(ctx, account, cred, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	s.logger.Info("account registered", "account_id", account.ID.String(), "role", string(account.Role))
	return account, nil
}

func (s *Service) limiter(email string) *rate.Limiter {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	if l, ok := s.limiters.Get(email); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)
	s.limiters.Set(email, l, cache.DefaultExpiration)
	return l
}

func (s *Service) SignIn(ctx context.Context, req *model.SignInRequest) (*model.Session, error) {
	email := normalizeEmail(req.Email)
	if !s.limiter(email).Allow() {
		return nil, ErrTooManyAttempts
	}

	cred, err := s.creds.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if err := s.hasher.Compare(cred.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.Get(ctx, cred.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// credential outlived its account (partial delete)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	token, claims, err := s.jwtSvc.GenerateAccessToken(auth.Subject{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      string(account.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &model.Session{
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
		AccountID:   account.ID,
		Role:        account.Role,
	}, nil
}

// SignOut revokes the token's session until it would have expired anyway.
// Signing out an already expired token is a no-op.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil
		}
		return ErrInvalidSession
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.sessions.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Authenticate verifies a token and returns the caller it was issued to.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	role := model.Role(claims.Role)
	if !role.IsValid() || claims.AccountID == uuid.Nil {
		return nil, ErrInvalidSession
	}

	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	// Tokens outlive deleted accounts; the account must still exist.
	account, err := s.accounts.Get(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account.Role != role {
		return nil, ErrInvalidSession
	}

	return &model.Principal{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      role,
		SessionID: claims.ID,
	}, nil
}
