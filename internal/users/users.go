// Package users resolves and mutates accounts. Reads go through the TTL
// cache; the stored record and the cached record always expose the same
// fields so redaction can happen uniformly at the handler boundary.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aquasense/internal/auth"
	"aquasense/internal/cache"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/models"
	"aquasense/internal/storage"
)

var (
	ErrSameValue = errors.New("update value equals the current value")
)

// Update enumerates the account fields a PATCH may touch. Nil means
// "leave alone"; there is no way to smuggle other columns through.
type Update struct {
	Name     *string
	Email    *string
	Password *string
}

func (u Update) empty() bool {
	return u.Name == nil && u.Email == nil && u.Password == nil
}

type Store interface {
	AccountByID(ctx context.Context, id string) (models.Account, error)
	AccountByEmail(ctx context.Context, email string) (models.Account, error)
	UpdateAccount(ctx context.Context, id string, upd storage.AccountUpdate) (models.Account, error)
	DeactivateAccount(ctx context.Context, id string, when time.Time) error
	DeviceIDsByUser(ctx context.Context, userID string) ([]string, error)
}

type Users struct {
	log         *slog.Logger
	store       Store
	cache       cache.Cache
	identityTTL time.Duration
}

func New(log *slog.Logger, store Store, c cache.Cache, identityTTL time.Duration) *Users {
	return &Users{
		log:         log,
		store:       store,
		cache:       c,
		identityTTL: identityTTL,
	}
}

// ByID resolves an account, cache first. A miss falls back to the store and
// repopulates; the two paths return identical shapes.
func (u *Users) ByID(ctx context.Context, id string) (models.Account, error) {
	const op = "users.ByID"

	key := cache.AccountKey(id)

	if data, err := u.cache.Get(ctx, key); err == nil {
		var acc models.Account
		if err := json.Unmarshal(data, &acc); err == nil {
			return acc, nil
		}
		// Corrupt cached value: fall through to the source of truth.
		u.log.Warn("discarding corrupt cached account", slog.String("op", op), slog.String("id", id))
	} else if !errors.Is(err, cache.ErrMiss) {
		u.log.Warn("cache read failed, using store", slog.String("op", op), sl.Err(err))
	}

	acc, err := u.store.AccountByID(ctx, id)
	if err != nil {
		return models.Account{}, err
	}

	u.repopulate(ctx, key, acc)

	return acc, nil
}

func (u *Users) ByEmail(ctx context.Context, email string) (models.Account, error) {
	return u.store.AccountByEmail(ctx, email)
}

// Get returns the account together with the ids of the devices it owns.
func (u *Users) Get(ctx context.Context, id string) (models.Account, []string, error) {
	acc, err := u.ByID(ctx, id)
	if err != nil {
		return models.Account{}, nil, err
	}

	deviceIDs, err := u.store.DeviceIDsByUser(ctx, id)
	if err != nil {
		return models.Account{}, nil, err
	}

	return acc, deviceIDs, nil
}

// ChangeCredentials applies a partial update after checking the caller's
// current password. Every supplied value must differ from the stored one and
// a new email must be unused.
func (u *Users) ChangeCredentials(ctx context.Context, id string, upd Update, currentPassword string) (old, updated models.Account, err error) {
	const op = "users.ChangeCredentials"

	if upd.empty() {
		return models.Account{}, models.Account{}, fmt.Errorf("%s: empty update", op)
	}

	old, err = u.store.AccountByID(ctx, id)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}

	if !auth.VerifyPassword(currentPassword, old.PassHash) {
		return models.Account{}, models.Account{}, auth.ErrInvalidCredentials
	}

	if upd.Name != nil && *upd.Name == old.Name {
		return models.Account{}, models.Account{}, ErrSameValue
	}
	if upd.Email != nil {
		if *upd.Email == old.Email {
			return models.Account{}, models.Account{}, ErrSameValue
		}
		if _, err := u.store.AccountByEmail(ctx, *upd.Email); err == nil {
			return models.Account{}, models.Account{}, storage.ErrAccountExists
		} else if !errors.Is(err, storage.ErrAccountNotFound) {
			return models.Account{}, models.Account{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if upd.Password != nil && auth.VerifyPassword(*upd.Password, old.PassHash) {
		return models.Account{}, models.Account{}, ErrSameValue
	}

	fields := storage.AccountUpdate{Name: upd.Name, Email: upd.Email}
	if upd.Password != nil {
		hash, err := auth.HashPassword(*upd.Password)
		if err != nil {
			return models.Account{}, models.Account{}, fmt.Errorf("%s: %w", op, err)
		}
		fields.PassHash = hash
	}

	updated, err = u.store.UpdateAccount(ctx, id, fields)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}

	u.repopulate(ctx, cache.AccountKey(id), updated)

	u.log.Info("account updated", slog.String("op", op), slog.String("id", id))

	return old, updated, nil
}

// Deactivate soft-deletes the account: it stays resolvable through the grace
// window and is removed for good by the reaper afterwards.
func (u *Users) Deactivate(ctx context.Context, id string) error {
	const op = "users.Deactivate"

	if err := u.store.DeactivateAccount(ctx, id, time.Now()); err != nil {
		return err
	}

	if err := u.cache.Delete(ctx, cache.AccountKey(id)); err != nil {
		u.log.Warn("failed to drop cached account", slog.String("op", op), sl.Err(err))
	}

	u.log.Info("account deactivated", slog.String("op", op), slog.String("id", id))

	return nil
}

func (u *Users) repopulate(ctx context.Context, key string, acc models.Account) {
	data, err := json.Marshal(acc)
	if err != nil {
		return
	}

	if err := u.cache.Set(ctx, key, data, u.identityTTL); err != nil {
		u.log.Warn("failed to repopulate account cache", sl.Err(err))
	}
}

// SafeAccount is the outward projection of an account: no password hash.
type SafeAccount struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Activated        bool       `json:"activated"`
	Deactivated      bool       `json:"deactivated,omitempty"`
	DeactivationDate *time.Time `json:"deactivation_date,omitempty"`
}

// StripSensitive projects an account for serialization. It is applied exactly
// once, at the handler boundary, never mid-pipeline.
func StripSensitive(acc models.Account) SafeAccount {
	return SafeAccount{
		ID:               acc.ID,
		Name:             acc.Name,
		Email:            acc.Email,
		Activated:        acc.Activated,
		Deactivated:      acc.Deactivated,
		DeactivationDate: acc.DeactivationDate,
	}
}
