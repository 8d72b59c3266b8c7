package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/mailer"
	"github.com/noah-isme/backend-pos/internal/obs"
)

const (
	defaultOTPTTL      = 10 * time.Minute
	defaultResetTTL    = 15 * time.Minute
	otpDigits          = 4
	otpLockTTL         = 10 * time.Second
	minPasswordLength  = 8
	resetTokenByteSize = 32
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID, role string) (string, time.Time, error)
}

// MailQueue schedules outbound email.
type MailQueue interface {
	Enqueue(ctx context.Context, email common.Email) error
}

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Secrets stores hashed OTPs and reset tokens.
type Secrets interface {
	SaveOTP(ctx context.Context, userID, hash string, ttl time.Duration) error
	ConsumeOTP(ctx context.Context, userID, hash string) (bool, error)
	DiscardOTP(ctx context.Context, userID string) error
	SaveResetToken(ctx context.Context, userID, hash string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, userID, hash string) (bool, error)
}

// Service implements account use cases.
type Service struct {
	store    Store
	secrets  Secrets
	tokens   TokenIssuer
	mail     MailQueue
	locker   Locker
	otpTTL   time.Duration
	resetTTL time.Duration
	now      func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store    Store
	Secrets  Secrets
	Tokens   TokenIssuer
	Mail     MailQueue
	Locker   Locker
	OTPTTL   time.Duration
	ResetTTL time.Duration
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("user: store is required")
	case cfg.Secrets == nil:
		return nil, errors.New("user: secret store is required")
	case cfg.Tokens == nil:
		return nil, errors.New("user: token issuer is required")
	case cfg.Mail == nil:
		return nil, errors.New("user: mail queue is required")
	}
	otpTTL := cfg.OTPTTL
	if otpTTL <= 0 {
		otpTTL = defaultOTPTTL
	}
	resetTTL := cfg.ResetTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	return &Service{
		store:    cfg.Store,
		secrets:  cfg.Secrets,
		tokens:   cfg.Tokens,
		mail:     cfg.Mail,
		locker:   cfg.Locker,
		otpTTL:   otpTTL,
		resetTTL: resetTTL,
		now:      time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LoginTotal.WithLabelValues("invalid").Inc()
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, err
	}
	ok, legacy, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", u.ID).Msg("stored password hash unreadable")
	}
	if !ok {
		obs.LoginTotal.WithLabelValues("invalid").Inc()
		return LoginResult{}, invalidCredentials()
	}
	if u.Status != StatusActive {
		obs.LoginTotal.WithLabelValues("inactive").Inc()
		return LoginResult{}, common.NewAppError("INACTIVE", "account is inactive", http.StatusForbidden, nil)
	}
	if legacy {
		s.upgradeHash(ctx, u.ID, password)
	}

	token, expiresAt, err := s.tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return LoginResult{}, err
	}
	obs.LoginTotal.WithLabelValues("success").Inc()
	return LoginResult{User: u, AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

func (s *Service) upgradeHash(ctx context.Context, userID, password string) {
	hash, err := HashPassword(password)
	if err == nil {
		err = s.store.SetPasswordHash(ctx, userID, hash)
	}
	log := zerolog.Ctx(ctx)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("rehash legacy password failed")
		return
	}
	log.Info().Str("user_id", userID).Msg("legacy password rehashed")
}

// RequestOTP emails a fresh reset code to the account owning email. Issuance is
// serialised per user so the stored hash always matches the last code sent.
func (s *Service) RequestOTP(ctx context.Context, email string) (OTPIssued, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return OTPIssued{}, common.Validation("email is required")
	}
	u, err := s.store.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return OTPIssued{}, common.NotFound("user not found")
		}
		return OTPIssued{}, err
	}

	var issued OTPIssued
	issue := func(ctx context.Context) error {
		code, err := common.RandomDigits(otpDigits)
		if err != nil {
			return err
		}
		if err := s.secrets.SaveOTP(ctx, u.ID, secretHash(u.ID, code), s.otpTTL); err != nil {
			return err
		}
		msg, err := mailer.OTPEmail(u.Email, u.Username, code, s.otpTTL)
		if err == nil {
			err = s.mail.Enqueue(ctx, msg)
		}
		if err != nil {
			if derr := s.secrets.DiscardOTP(context.WithoutCancel(ctx), u.ID); derr != nil {
				zerolog.Ctx(ctx).Warn().Err(derr).Str("user_id", u.ID).Msg("discard otp failed")
			}
			return err
		}
		issued = OTPIssued{UserID: u.ID, ExpiresAt: s.now().Add(s.otpTTL)}
		return nil
	}
	if s.locker != nil {
		err = s.locker.WithLock(ctx, "otp:"+u.ID, otpLockTTL, issue)
	} else {
		err = issue(ctx)
	}
	if err != nil {
		return OTPIssued{}, fmt.Errorf("issue otp: %w", err)
	}
	obs.OTPIssuedTotal.Inc()
	return issued, nil
}

// VerifyOTP consumes the pending code and returns a single-use reset token.
func (s *Service) VerifyOTP(ctx context.Context, userID, code string) (ResetGrant, error) {
	if err := checkID(userID); err != nil {
		return ResetGrant{}, err
	}
	code = strings.TrimSpace(code)
	if !isDigits(code, otpDigits) {
		return ResetGrant{}, invalidOTP()
	}
	ok, err := s.secrets.ConsumeOTP(ctx, userID, secretHash(userID, code))
	if err != nil {
		return ResetGrant{}, err
	}
	if !ok {
		return ResetGrant{}, invalidOTP()
	}
	token, err := common.RandomToken(resetTokenByteSize)
	if err != nil {
		return ResetGrant{}, err
	}
	if err := s.secrets.SaveResetToken(ctx, userID, secretHash(userID, token), s.resetTTL); err != nil {
		return ResetGrant{}, err
	}
	return ResetGrant{UserID: userID, ResetToken: token, ExpiresAt: s.now().Add(s.resetTTL)}, nil
}

// ResetPassword replaces the password when token matches the pending reset token.
func (s *Service) ResetPassword(ctx context.Context, userID, token, password string) error {
	if len(password) < minPasswordLength {
		return common.NewAppError("WEAK_PASSWORD", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}
	if err := checkID(userID); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, userID); err != nil {
		return mapStoreError(err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return invalidToken()
	}
	ok, err := s.secrets.ConsumeResetToken(ctx, userID, secretHash(userID, token))
	if err != nil {
		return err
	}
	if !ok {
		return invalidToken()
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordHash(ctx, userID, hash); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// Add creates an account. Role defaults to STAFF.
func (s *Service) Add(ctx context.Context, in CreateInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	switch {
	case in.Username == "":
		return User{}, common.Validation("username is required")
	case in.Email == "":
		return User{}, common.Validation("email is required")
	case in.Phone == "":
		return User{}, common.Validation("phone is required")
	case len(in.Password) < minPasswordLength:
		return User{}, common.NewAppError("WEAK_PASSWORD", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}
	if in.Role == "" {
		in.Role = RoleStaff
	}
	if !in.Role.Valid() {
		return User{}, common.Validation("role must be ADMIN or STAFF")
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	u, err := s.store.Create(ctx, NewUser{
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         in.Role,
	})
	if err != nil {
		return User{}, mapStoreError(err)
	}
	return u, nil
}

// Update replaces the provided profile fields.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (User, error) {
	if err := checkID(id); err != nil {
		return User{}, err
	}
	if in.Username != nil {
		v := strings.TrimSpace(*in.Username)
		if v == "" {
			return User{}, common.Validation("username cannot be empty")
		}
		in.Username = &v
	}
	if in.Email != nil {
		v := normalizeEmail(*in.Email)
		if v == "" {
			return User{}, common.Validation("email cannot be empty")
		}
		in.Email = &v
	}
	if in.Phone != nil {
		v := strings.TrimSpace(*in.Phone)
		if v == "" {
			return User{}, common.Validation("phone cannot be empty")
		}
		in.Phone = &v
	}
	if in.Role != nil && !in.Role.Valid() {
		return User{}, common.Validation("role must be ADMIN or STAFF")
	}
	u, err := s.store.Update(ctx, id, in)
	if err != nil {
		return User{}, mapStoreError(err)
	}
	return u, nil
}

// SetStatus activates or deactivates an account.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (User, error) {
	if err := checkID(id); err != nil {
		return User{}, err
	}
	if !status.Valid() {
		return User{}, common.Validation("status must be ACTIVE or INACTIVE")
	}
	u, err := s.store.SetStatus(ctx, id, status)
	if err != nil {
		return User{}, mapStoreError(err)
	}
	return u, nil
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]User, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if err := checkID(id); err != nil {
		return User{}, err
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return User{}, mapStoreError(err)
	}
	return u, nil
}

func secretHash(userID, secret string) string {
	return common.Sha256Hex(userID + ":" + secret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isDigits(v string, n int) bool {
	if len(v) != n {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.Validation("invalid user id")
	}
	return nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("user not found")
	case errors.Is(err, ErrDuplicateEmail):
		return common.Conflict("EMAIL_EXISTS", "email already registered", nil)
	case errors.Is(err, ErrDuplicatePhone):
		return common.Conflict("PHONE_EXISTS", "phone already registered", nil)
	}
	return err
}

func invalidCredentials() error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func invalidOTP() error {
	return common.NewAppError("INVALID_OTP", "invalid or expired otp", http.StatusBadRequest, nil)
}

func invalidToken() error {
	return common.NewAppError("INVALID_TOKEN", "invalid or expired token", http.StatusBadRequest, nil)
}
