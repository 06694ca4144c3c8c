package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aquasense/internal/cache"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/lib/random"
	"aquasense/internal/models"
	"aquasense/internal/storage"
	"aquasense/internal/tokens"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrEmailAlreadySent   = errors.New("verification email already sent")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenUsed          = errors.New("activation token already used")
	ErrKeyMismatch        = errors.New("access key does not match stored key")

	// ErrPendingVanished means the activation token verified but the pending
	// record is gone from the cache. That is cache/store desynchronization,
	// not a client mistake; handlers surface it as a server fault.
	ErrPendingVanished = errors.New("pending account missing from cache")
)

type AccountSaver interface {
	CreateAccount(ctx context.Context, acc models.Account) error
}

type AccountProvider interface {
	AccountByID(ctx context.Context, id string) (models.Account, error)
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
}

type DeviceProvider interface {
	DeviceByID(ctx context.Context, id string) (models.Device, error)
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.EmailMessage) error
}

type Auth struct {
	log           *slog.Logger
	accSaver      AccountSaver
	accProvider   AccountProvider
	devProvider   DeviceProvider
	cache         cache.Cache
	tokens        *tokens.Service
	publisher     Publisher
	publicURL     string
	activationTTL time.Duration
}

func New(
	log *slog.Logger,
	accSaver AccountSaver,
	accProvider AccountProvider,
	devProvider DeviceProvider,
	store cache.Cache,
	tokenService *tokens.Service,
	publisher Publisher,
	publicURL string,
	activationTTL time.Duration,
) *Auth {
	return &Auth{
		log:           log,
		accSaver:      accSaver,
		accProvider:   accProvider,
		devProvider:   devProvider,
		cache:         store,
		tokens:        tokenService,
		publisher:     publisher,
		publicURL:     publicURL,
		activationTTL: activationTTL,
	}
}

// Signup stores an account candidate in the cache and mails an activation
// link. The account reaches the database only when the link is used. The
// returned token is the caller's session cookie value.
func (a *Auth) Signup(ctx context.Context, name, email, password string) (string, error) {
	const op = "auth.Signup"

	log := a.log.With(slog.String("op", op))

	_, err := a.accProvider.AccountByEmail(ctx, email)
	if err == nil {
		log.Info("signup rejected, email already registered")
		return "", ErrAccountExists
	}
	if !errors.Is(err, storage.ErrAccountNotFound) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := random.NewID()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	pending := models.PendingAccount{
		ID:       id,
		Name:     name,
		Email:    email,
		PassHash: passHash,
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := a.cache.Set(ctx, cache.PendingAccountKey(id), data, a.activationTTL); err != nil {
		return "", fmt.Errorf("%s: failed to store pending account: %w", op, err)
	}

	sessionToken, err := a.tokens.IssueSession(id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	sent, err := a.cache.Has(ctx, cache.EmailSentKey(email))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if sent {
		log.Info("signup repeated inside dedup window")
		return "", ErrEmailAlreadySent
	}

	activationToken, err := a.tokens.IssueActivation(id, email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	msg := models.EmailMessage{
		Email: email,
		Link:  fmt.Sprintf("%s/api/auth/activate?token=%s", a.publicURL, activationToken),
	}

	// The publish is awaited and gates the dedup marker: a failed send must
	// not block re-signup for the whole window.
	if err := a.publisher.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish activation email", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := a.cache.Set(ctx, cache.EmailSentKey(email), []byte{}, a.activationTTL); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("pending account created", slog.String("id", id))

	return sessionToken, nil
}

// Activate consumes an activation token: verifies it, promotes the pending
// record to a persisted account and burns the token for the rest of its
// natural lifetime. Returns the new account id.
func (a *Auth) Activate(ctx context.Context, rawToken string) (string, error) {
	const op = "auth.Activate"

	log := a.log.With(slog.String("op", op))

	used, err := a.cache.Has(ctx, cache.UsedTokenKey(rawToken))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if used {
		log.Info("activation token replayed")
		return "", ErrTokenUsed
	}

	claims, err := a.tokens.VerifyActivation(rawToken)
	if err != nil {
		// tokens.ErrExpired or tokens.ErrInvalid, the handler tells them apart.
		return "", err
	}

	data, err := a.cache.Get(ctx, cache.PendingAccountKey(claims.UserID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return "", ErrPendingVanished
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	var pending models.PendingAccount
	if err := json.Unmarshal(data, &pending); err != nil {
		return "", fmt.Errorf("%s: corrupt pending account: %w", op, err)
	}

	// Atomic check-and-set: of two concurrent activations only one wins the
	// marker, the other reads it as a replay.
	ok, err := a.cache.SetNX(ctx, cache.UsedTokenKey(rawToken), []byte(pending.ID), a.activationTTL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Info("activation token replayed")
		return "", ErrTokenUsed
	}

	acc := models.Account{
		ID:        pending.ID,
		Name:      pending.Name,
		Email:     pending.Email,
		PassHash:  pending.PassHash,
		Activated: true,
	}

	if err := a.accSaver.CreateAccount(ctx, acc); err != nil {
		// The marker must not outlive a failed write: release the token so
		// the user can retry the link within its validity window.
		if delErr := a.cache.Delete(ctx, cache.UsedTokenKey(rawToken)); delErr != nil {
			log.Error("failed to release activation marker", sl.Err(delErr))
		}

		return "", fmt.Errorf("%s: failed to create account: %w", op, err)
	}

	log.Info("account activated", slog.String("id", acc.ID))

	return acc.ID, nil
}

// Login checks credentials and mints a session token for the cookie.
func (a *Auth) Login(ctx context.Context, email, password string) (string, models.Account, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	acc, err := a.accProvider.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return "", models.Account{}, storage.ErrAccountNotFound
		}

		return "", models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	if !VerifyPassword(password, acc.PassHash) {
		log.Info("invalid credentials")
		return "", models.Account{}, ErrInvalidCredentials
	}

	token, err := a.tokens.IssueSession(acc.ID)
	if err != nil {
		return "", models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("id", acc.ID))

	return token, acc, nil
}

// CheckDeviceKey authorizes a device write. Signature validity alone is not
// enough: the presented key must byte-for-byte equal the key stored for the
// device, so rotated keys fail even while cryptographically sound.
func (a *Auth) CheckDeviceKey(ctx context.Context, rawKey string) (string, error) {
	const op = "auth.CheckDeviceKey"

	claims, err := a.tokens.VerifyDeviceKey(rawKey)
	if err != nil {
		return "", err
	}

	device, err := a.devProvider.DeviceByID(ctx, claims.DeviceID)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			return "", storage.ErrDeviceNotFound
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	if device.AccessKey != rawKey {
		a.log.Warn("rejected rotated or foreign access key",
			slog.String("op", op), slog.String("device_id", claims.DeviceID))
		return "", ErrKeyMismatch
	}

	return claims.DeviceID, nil
}

// VerifySession exposes session verification to the guard chain without
// handing out the signing secret.
func (a *Auth) VerifySession(raw string) (*tokens.SessionClaims, error) {
	return a.tokens.VerifySession(raw)
}

func (a *Auth) SessionTTL() time.Duration {
	return a.tokens.SessionTTL()
}
