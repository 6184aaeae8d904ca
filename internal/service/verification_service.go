package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/Brownie44l1/marketguard/internal/auth"
	"github.com/Brownie44l1/marketguard/internal/clock"
	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/Brownie44l1/marketguard/internal/notification"
	"go.uber.org/zap"
)

// ==============================================
// REPOSITORY INTERFACES (for testing)
// ==============================================

type VerificationRepositoryInterface interface {
	Create(ctx context.Context, req *models.VerificationRequest) (int64, error)
	FindByIDAndOwner(ctx context.Context, id, userID int64) (*models.VerificationRequest, error)
	Regenerate(ctx context.Context, id, userID int64, codeHash string, expiresAt time.Time) (bool, error)
	Cancel(ctx context.Context, id, userID int64, now time.Time) (bool, error)
	ConsumeAndApply(ctx context.Context, req *models.VerificationRequest, now time.Time) (bool, error)
}

type UserRepositoryInterface interface {
	CurrentValue(ctx context.Context, userID int64, t models.VerificationType) (string, error)
	IsValueTaken(ctx context.Context, t models.VerificationType, value string, exceptUserID int64) (bool, error)
}

// Notifier delivers codes. *notification.Dispatcher implements it.
type Notifier interface {
	Send(ctx context.Context, userID int64, channel string, msg notification.Message) error
}

type CodeHasher interface {
	Hash(code string) (string, error)
	Matches(code, hash string) bool
}

// ==============================================
// VERIFICATION TYPES
// ==============================================

// verificationKind holds the per-attribute rules. Adding an attribute means
// adding a row here and a column mapping in the repository.
type verificationKind struct {
	// normalize returns the canonical form, or false if value is malformed.
	normalize func(value string) (string, bool)
	channel   string
}

func verificationKinds(countryCode string) map[models.VerificationType]verificationKind {
	return map[models.VerificationType]verificationKind{
		models.VerificationTypeEmail: {
			normalize: normalizeEmail,
			channel:   notification.ChannelEmail,
		},
		models.VerificationTypePhone: {
			normalize: func(value string) (string, bool) {
				return normalizePhone(value, countryCode)
			},
			channel: notification.ChannelSMS,
		},
	}
}

func normalizeEmail(value string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(value))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(domain, "@") || strings.ContainsFunc(email, unicode.IsSpace) {
		return "", false
	}
	return email, true
}

// normalizePhone strips separators and rewrites the local country prefix
// (+CC or 00CC) to the national trunk prefix 0, so "+81 3-1234-5678",
// "0081312345678" and "03-1234-5678" are the same number.
func normalizePhone(value, countryCode string) (string, bool) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(value) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	phone := b.String()

	if countryCode != "" {
		for _, prefix := range []string{"+" + countryCode, "00" + countryCode} {
			if rest, ok := strings.CutPrefix(phone, prefix); ok {
				phone = "0" + strings.TrimPrefix(rest, "0")
				break
			}
		}
	}

	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 6 || len(digits) > 15 {
		return "", false
	}
	return phone, true
}

// ==============================================
// SERVICE
// ==============================================

type VerificationConfig struct {
	CodeTTL          time.Duration
	PhoneCountryCode string
}

type VerificationService struct {
	repo     VerificationRepositoryInterface
	users    UserRepositoryInterface
	notifier Notifier
	hasher   CodeHasher
	clock    clock.Clock
	kinds    map[models.VerificationType]verificationKind
	ttl      time.Duration
	logger   *zap.Logger
}

func NewVerificationService(
	repo VerificationRepositoryInterface,
	users UserRepositoryInterface,
	notifier Notifier,
	hasher CodeHasher,
	clk clock.Clock,
	cfg VerificationConfig,
	logger *zap.Logger,
) *VerificationService {
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = models.DefaultOTPExpiry
	}
	return &VerificationService{
		repo:     repo,
		users:    users,
		notifier: notifier,
		hasher:   hasher,
		clock:    clk,
		kinds:    verificationKinds(cfg.PhoneCountryCode),
		ttl:      ttl,
		logger:   logger,
	}
}

// ==============================================
// CREATE REQUEST
// ==============================================

// CreateRequest issues a code for changing actor's attribute to target. Any
// older pending request for the same attribute is cancelled. When the code
// cannot be delivered the request is still returned, together with an error
// matching models.ErrDispatchFailure.
func (s *VerificationService) CreateRequest(ctx context.Context, actor models.Actor, t models.VerificationType, target string) (*models.VerificationRequest, error) {
	kind, ok := s.kinds[t]
	if !ok {
		return nil, models.Validationf("unsupported verification type %q", t)
	}

	value, ok := kind.normalize(target)
	if !ok {
		return nil, models.Validationf("invalid %s", t)
	}

	current, err := s.users.CurrentValue(ctx, actor.UserID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to load current %s: %w", t, err)
	}
	if normalized, ok := kind.normalize(current); ok && normalized == value {
		return nil, models.Validationf("%s is unchanged", t)
	}

	taken, err := s.users.IsValueTaken(ctx, t, value, actor.UserID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, models.Validationf("%s is already in use", t)
	}

	code, hash, err := s.newCode()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req := &models.VerificationRequest{
		UserID:      actor.UserID,
		Type:        t,
		TargetValue: value,
		CodeHash:    hash,
		Status:      models.VerificationPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	superseded, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info(models.AuditActionVerificationCreated,
		zap.Int64("user_id", actor.UserID),
		zap.Int64("request_id", req.ID),
		zap.String("type", string(t)),
		zap.Int64("superseded", superseded),
	)

	if err := s.dispatch(ctx, req, kind, code); err != nil {
		return req, err
	}
	return req, nil
}

// ==============================================
// VERIFY
// ==============================================

// Verify applies the request's target value if code matches. Every failure
// that could help someone guess codes is reported as models.ErrInvalidOrExpired.
func (s *VerificationService) Verify(ctx context.Context, actor models.Actor, requestID int64, code string) (*models.VerificationRequest, error) {
	if len(code) != models.OTPLength {
		return nil, models.ErrInvalidOrExpired
	}

	req, err := s.repo.FindByIDAndOwner(ctx, requestID, actor.UserID)
	if err != nil {
		if models.IsNotFoundError(err) {
			return nil, models.ErrInvalidOrExpired
		}
		return nil, err
	}

	now := s.clock.Now()
	if !req.IsUsable(now) || !s.hasher.Matches(code, req.CodeHash) {
		return nil, models.ErrInvalidOrExpired
	}

	// The hash we compared against is part of the guard, so a resend that
	// lands in between defeats this code.
	applied, err := s.repo.ConsumeAndApply(ctx, req, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, models.ErrInvalidOrExpired
	}

	req.Status = models.VerificationConsumed
	req.ResolvedAt = &now

	s.logger.Info(models.AuditActionVerificationConsumed,
		zap.Int64("user_id", actor.UserID),
		zap.Int64("request_id", req.ID),
		zap.String("type", string(req.Type)),
	)
	return req, nil
}

// ==============================================
// RESEND
// ==============================================

// Resend replaces the code and restarts the expiry window. The previous code
// stops working immediately. Expired requests may be resent.
func (s *VerificationService) Resend(ctx context.Context, actor models.Actor, requestID int64) (*models.VerificationRequest, error) {
	req, err := s.repo.FindByIDAndOwner(ctx, requestID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if req.IsTerminal() {
		return nil, alreadyResolved(req)
	}

	kind, ok := s.kinds[req.Type]
	if !ok {
		return nil, models.Validationf("unsupported verification type %q", req.Type)
	}

	code, hash, err := s.newCode()
	if err != nil {
		return nil, err
	}

	expiresAt := s.clock.Now().Add(s.ttl)
	updated, err := s.repo.Regenerate(ctx, req.ID, actor.UserID, hash, expiresAt)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, alreadyResolved(req)
	}

	req.CodeHash = hash
	req.ExpiresAt = expiresAt

	s.logger.Info(models.AuditActionVerificationResent,
		zap.Int64("user_id", actor.UserID),
		zap.Int64("request_id", req.ID),
		zap.String("type", string(req.Type)),
	)

	if err := s.dispatch(ctx, req, kind, code); err != nil {
		return req, err
	}
	return req, nil
}

// ==============================================
// CANCEL
// ==============================================

func (s *VerificationService) Cancel(ctx context.Context, actor models.Actor, requestID int64) (*models.VerificationRequest, error) {
	req, err := s.repo.FindByIDAndOwner(ctx, requestID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if req.IsTerminal() {
		return nil, alreadyResolved(req)
	}

	now := s.clock.Now()
	cancelled, err := s.repo.Cancel(ctx, req.ID, actor.UserID, now)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, alreadyResolved(req)
	}

	req.Status = models.VerificationCancelled
	req.ResolvedAt = &now

	s.logger.Info(models.AuditActionVerificationCancelled,
		zap.Int64("user_id", actor.UserID),
		zap.Int64("request_id", req.ID),
	)
	return req, nil
}

// ==============================================
// HELPERS
// ==============================================

func (s *VerificationService) newCode() (code, hash string, err error) {
	code, err = auth.GenerateOTP(models.OTPLength)
	if err != nil {
		return "", "", err
	}
	hash, err = s.hasher.Hash(code)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash code: %w", err)
	}
	return code, hash, nil
}

func (s *VerificationService) dispatch(ctx context.Context, req *models.VerificationRequest, kind verificationKind, code string) error {
	err := s.notifier.Send(ctx, req.UserID, kind.channel, notification.Message{
		Recipient: req.TargetValue,
		Code:      code,
		Attribute: string(req.Type),
		ExpiresIn: req.ExpiresAt.Sub(s.clock.Now()),
	})
	if err != nil {
		return models.DispatchFailed(err)
	}
	return nil
}

func alreadyResolved(req *models.VerificationRequest) error {
	return models.NewAppError(models.ErrCodeAlreadyInState,
		fmt.Sprintf("verification request %d is no longer pending", req.ID),
		models.ErrAlreadyInState)
}
