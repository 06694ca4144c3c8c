// Package devices resolves and mutates the device fleet: display metadata,
// access-key rotation and measurement ingest.
package devices

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"aquasense/internal/cache"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/models"
	"aquasense/internal/storage"
	"aquasense/internal/tokens"
)

var ErrNoNewValues = errors.New("no new values")

// Update enumerates the mutable display fields.
type Update struct {
	Name  *string
	Emoji *string
}

type Store interface {
	DeviceByID(ctx context.Context, id string) (models.Device, error)
	DeviceIDs(ctx context.Context) ([]string, error)
	Devices(ctx context.Context) ([]models.Device, error)
	UpdateDevice(ctx context.Context, id string, upd storage.DeviceUpdate) (models.Device, error)
	UpdateMeasurements(ctx context.Context, id string, m models.Measurements) error
	UpdateAccessKey(ctx context.Context, id, accessKey string) error
}

type Devices struct {
	log         *slog.Logger
	store       Store
	cache       cache.Cache
	tokens      *tokens.Service
	identityTTL time.Duration
}

func New(log *slog.Logger, store Store, c cache.Cache, tokenService *tokens.Service, identityTTL time.Duration) *Devices {
	return &Devices{
		log:         log,
		store:       store,
		cache:       c,
		tokens:      tokenService,
		identityTTL: identityTTL,
	}
}

// ByID resolves a device, cache first, repopulating on a store hit.
func (d *Devices) ByID(ctx context.Context, id string) (models.Device, error) {
	const op = "devices.ByID"

	key := cache.DeviceKey(id)

	if data, err := d.cache.Get(ctx, key); err == nil {
		var dev models.Device
		if err := json.Unmarshal(data, &dev); err == nil {
			return dev, nil
		}
		d.log.Warn("discarding corrupt cached device", slog.String("op", op), slog.String("id", id))
	} else if !errors.Is(err, cache.ErrMiss) {
		d.log.Warn("cache read failed, using store", slog.String("op", op), sl.Err(err))
	}

	dev, err := d.store.DeviceByID(ctx, id)
	if err != nil {
		return models.Device{}, err
	}

	d.repopulate(ctx, key, dev)

	return dev, nil
}

func (d *Devices) IDs(ctx context.Context) ([]string, error) {
	return d.store.DeviceIDs(ctx)
}

// PublicDevice pairs a device id with its public measurements.
type PublicDevice struct {
	ID           string              `json:"id"`
	Measurements models.Measurements `json:"measurements"`
}

// PublicAll lists the measurements of the whole fleet, stripped of identity
// and credential fields.
func (d *Devices) PublicAll(ctx context.Context) ([]PublicDevice, error) {
	devs, err := d.store.Devices(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PublicDevice, 0, len(devs))
	for _, dev := range devs {
		out = append(out, PublicDevice{ID: dev.ID, Measurements: ExtractMeasurements(dev)})
	}

	return out, nil
}

func (d *Devices) Measurements(ctx context.Context, id string) (models.Measurements, error) {
	dev, err := d.ByID(ctx, id)
	if err != nil {
		return models.Measurements{}, err
	}

	return ExtractMeasurements(dev), nil
}

// ChangeMeta updates name/emoji. Submitting the stored values verbatim is
// reported as ErrNoNewValues rather than a write.
func (d *Devices) ChangeMeta(ctx context.Context, id string, upd Update) (old, updated models.Device, err error) {
	const op = "devices.ChangeMeta"

	old, err = d.store.DeviceByID(ctx, id)
	if err != nil {
		return models.Device{}, models.Device{}, err
	}

	changed := (upd.Name != nil && *upd.Name != old.Name) ||
		(upd.Emoji != nil && *upd.Emoji != old.Emoji)
	if !changed {
		return models.Device{}, models.Device{}, ErrNoNewValues
	}

	updated, err = d.store.UpdateDevice(ctx, id, storage.DeviceUpdate{Name: upd.Name, Emoji: upd.Emoji})
	if err != nil {
		return models.Device{}, models.Device{}, err
	}

	d.repopulate(ctx, cache.DeviceKey(id), updated)

	d.log.Info("device updated", slog.String("op", op), slog.String("id", id))

	return old, updated, nil
}

// Ingest records a measurement push, deriving the risk level server-side.
func (d *Devices) Ingest(ctx context.Context, id string, ph, turbidity, waterTemperature *float64) (models.Measurements, error) {
	const op = "devices.Ingest"

	now := time.Now()
	m := models.Measurements{
		Ph:               ph,
		Turbidity:        turbidity,
		WaterTemperature: waterTemperature,
		Risk:             DeriveRisk(ph, turbidity),
		UpdatedAt:        &now,
	}

	if err := d.store.UpdateMeasurements(ctx, id, m); err != nil {
		return models.Measurements{}, err
	}

	// Next read repopulates from the store.
	if err := d.cache.Delete(ctx, cache.DeviceKey(id)); err != nil {
		d.log.Warn("failed to drop cached device", slog.String("op", op), sl.Err(err))
	}

	d.log.Info("measurements recorded", slog.String("op", op),
		slog.String("id", id), slog.String("risk", string(m.Risk)))

	return m, nil
}

// RotateKey mints a fresh access key, stores it and returns it once. The
// previous key stops authenticating immediately, regardless of its signature.
func (d *Devices) RotateKey(ctx context.Context, id string) (string, error) {
	const op = "devices.RotateKey"

	if _, err := d.store.DeviceByID(ctx, id); err != nil {
		return "", err
	}

	key, err := d.tokens.IssueDeviceKey(id)
	if err != nil {
		return "", err
	}

	if err := d.store.UpdateAccessKey(ctx, id, key); err != nil {
		return "", err
	}

	if err := d.cache.Delete(ctx, cache.DeviceKey(id)); err != nil {
		d.log.Warn("failed to drop cached device", slog.String("op", op), sl.Err(err))
	}

	d.log.Info("access key rotated", slog.String("op", op), slog.String("id", id))

	return key, nil
}

func (d *Devices) repopulate(ctx context.Context, key string, dev models.Device) {
	data, err := json.Marshal(dev)
	if err != nil {
		return
	}

	if err := d.cache.Set(ctx, key, data, d.identityTTL); err != nil {
		d.log.Warn("failed to repopulate device cache", sl.Err(err))
	}
}

// SafeDevice is the outward projection of a device: no access key.
type SafeDevice struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Name             string           `json:"name"`
	Emoji            string           `json:"emoji"`
	Ph               *float64         `json:"ph"`
	Turbidity        *float64         `json:"turbidity"`
	WaterTemperature *float64         `json:"water_temperature"`
	Risk             models.RiskLevel `json:"risk"`
	UpdatedAt        *time.Time       `json:"updated_at"`
}

// StripSensitive projects a device for serialization; applied once, at the
// handler boundary.
func StripSensitive(dev models.Device) SafeDevice {
	return SafeDevice{
		ID:               dev.ID,
		UserID:           dev.UserID,
		Name:             dev.Name,
		Emoji:            dev.Emoji,
		Ph:               dev.Ph,
		Turbidity:        dev.Turbidity,
		WaterTemperature: dev.WaterTemperature,
		Risk:             dev.Risk,
		UpdatedAt:        dev.UpdatedAt,
	}
}

func ExtractMeasurements(dev models.Device) models.Measurements {
	return models.Measurements{
		Ph:               dev.Ph,
		Turbidity:        dev.Turbidity,
		WaterTemperature: dev.WaterTemperature,
		Risk:             dev.Risk,
		UpdatedAt:        dev.UpdatedAt,
	}
}

// DeriveRisk classifies water quality from pH and turbidity bands. Missing
// readings don't raise the level on their own.
func DeriveRisk(ph, turbidity *float64) models.RiskLevel {
	risk := models.RiskLow

	if ph != nil {
		switch {
		case *ph < 6.0 || *ph > 9.0:
			return models.RiskHigh
		case *ph < 6.5 || *ph > 8.5:
			risk = models.RiskMedium
		}
	}

	if turbidity != nil {
		switch {
		case *turbidity >= 5.0:
			return models.RiskHigh
		case *turbidity >= 1.0:
			risk = models.RiskMedium
		}
	}

	return risk
}
