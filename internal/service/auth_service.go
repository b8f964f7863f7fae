package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authsvc/internal/domain"
	"authsvc/internal/email"
	"authsvc/internal/repository"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateUsername  = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrEmailNotFound      = errors.New("email not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
	ErrRateLimited        = errors.New("rate limited")
)

const resetRequestWindow = 10 * time.Minute

// AuthService orquesta registro, login y restablecimiento de contraseñas.
type AuthService struct {
	logger       *zap.Logger
	users        repository.UserRepository
	hasher       *PasswordHasher
	tokens       *TokenService
	emailSender  email.Sender
	resetLimiter ResetRateLimiter
	resetURLBase string
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher *PasswordHasher,
	tokens *TokenService,
	emailSender email.Sender,
	resetLimiter ResetRateLimiter,
	resetURLBase string,
) *AuthService {
	if hasher == nil {
		hasher = NewPasswordHasher()
	}
	if resetLimiter == nil {
		resetLimiter = NewResetRateLimiter(resetRequestWindow, 3)
	}
	return &AuthService{
		logger:       logger,
		users:        users,
		hasher:       hasher,
		tokens:       tokens,
		emailSender:  emailSender,
		resetLimiter: resetLimiter,
		resetURLBase: strings.TrimRight(resetURLBase, "/"),
	}
}

type RegisterInput struct {
	Username string
	FullName string
	Email    string
	Phone    string
	Password string
}

// LoginResult es la respuesta de un login exitoso.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register crea un usuario activo con salt fresco. El email se chequea antes
// que el username: si ambos están tomados gana el error de email.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return domain.User{}, ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		FullName:     strings.TrimSpace(input.FullName),
		Email:        emailAddr,
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: s.hasher.Hash(input.Password, salt),
		Salt:         salt,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Dos registros concurrentes pueden superar ambos pre-chequeos;
		// el constraint único decide y se mapea al mismo error.
		switch {
		case errors.Is(err, repository.ErrEmailTaken):
			return domain.User{}, ErrDuplicateEmail
		case errors.Is(err, repository.ErrUsernameTaken):
			return domain.User{}, ErrDuplicateUsername
		}
		return domain.User{}, err
	}

	return user, nil
}

// Login autentica por username y contraseña. Usuario inexistente y contraseña
// incorrecta devuelven el mismo error para no revelar qué cuentas existen.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash, user.Salt) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return LoginResult{}, ErrInactiveUser
	}

	token, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, TokenType: "bearer"}, nil
}

// RequestPasswordReset emite un token de reset y delega el envío del correo.
// La entrega es fire-and-forget: su falla se loguea y no altera la respuesta.
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)

	if s.resetLimiter != nil && !s.resetLimiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	token, err := s.tokens.IssueReset(user.ID)
	if err != nil {
		return err
	}

	if s.emailSender != nil {
		resetURL := fmt.Sprintf("%s/api/v1/password/reset/%s", s.resetURLBase, token)
		if err := s.emailSender.SendPasswordReset(ctx, user.Email, resetURL); err != nil {
			if s.logger != nil {
				s.logger.Warn("send password reset failed", zap.Error(err), zap.String("email", user.Email))
			}
		}
	}
	return nil
}

// ConfirmPasswordReset valida el token del enlace y resuelve su subject.
// No muta estado: el token es el único estado del flujo.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token string) (domain.User, error) {
	userID, err := s.tokens.VerifyReset(token)
	if err != nil {
		return domain.User{}, ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// CompletePasswordReset rota salt y hash del usuario del email enviado.
// El subject del token no se cruza contra el email: comportamiento heredado,
// se conserva a propósito y solo se deja constancia en el log.
func (s *AuthService) CompletePasswordReset(ctx context.Context, token, emailAddr, newPassword string) error {
	subject, err := s.tokens.VerifyReset(token)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	if user.ID != subject && s.logger != nil {
		s.logger.Warn("reset token subject differs from submitted email",
			zap.String("token_subject", subject),
			zap.String("user_id", user.ID),
		)
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return err
	}
	hash := s.hasher.Hash(newPassword, salt)

	return s.users.UpdatePassword(ctx, user.ID, hash, salt, time.Now().UTC())
}

// GetUser resuelve un usuario por id.
func (s *AuthService) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
