package auth

import (
	"context"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user inactive")

	// ErrRateLimited carries a guard decision in RateLimitError.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitError is returned when the admission gate denies a login; the
// handler turns the embedded decision into 429 headers.
type RateLimitError struct {
	Decision guard.Decision
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// AuthService performs the guarded login. The admission gate runs before
// the credential check, and the outcome is always reported back through the
// gate's reporter so the lockout and reputation state stay accurate.
type AuthService struct {
	users *repository.UserRepository
	gate  *guard.Gate
	jwt   *JWTManager
}

func NewAuthService(users *repository.UserRepository, gate *guard.Gate, jwt *JWTManager) *AuthService {
	return &AuthService{users: users, gate: gate, jwt: jwt}
}

// Login authenticates a user. ip and userAgent identify the caller for the
// guard; captchaToken may be empty until the guard demands one.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, ip, userAgent string) (*models.LoginResponse, error) {
	decision, reporter, err := s.gate.CheckLogin(ctx, guard.LoginCheck{
		Email:        req.Email,
		IP:           ip,
		UserAgent:    userAgent,
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &RateLimitError{Decision: decision}
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.reportFailure(ctx, reporter, "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		res := s.reportFailure(ctx, reporter, "invalid_password")
		if res.Locked {
			log.Printf("[SECURITY] login attempt on freshly locked account: email=%s ip=%s", req.Email, ip)
		}
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		// Right password, disabled account. Still counts against the
		// guard: probing disabled accounts is attacker behavior too.
		s.reportFailure(ctx, reporter, "inactive_account")
		return nil, ErrUserInactive
	}

	reporter.Success(ctx)

	token, expiresAt, err := s.jwt.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) reportFailure(ctx context.Context, reporter *guard.Reporter, reason string) guard.FailureResult {
	res, err := reporter.Failure(ctx, reason)
	if err != nil {
		log.Printf("[SECURITY] failed to record login failure: %v", err)
	}
	return res
}
