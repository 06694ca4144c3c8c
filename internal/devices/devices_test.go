package devices

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"aquasense/internal/cache"
	"aquasense/internal/models"
	"aquasense/internal/storage"
	"aquasense/internal/tokens"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	devices map[string]models.Device

	byIDCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{devices: make(map[string]models.Device)}
}

func (f *fakeStore) DeviceByID(_ context.Context, id string) (models.Device, error) {
	f.byIDCalls++
	dev, ok := f.devices[id]
	if !ok {
		return models.Device{}, storage.ErrDeviceNotFound
	}
	return dev, nil
}

func (f *fakeStore) DeviceIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.devices))
	for id := range f.devices {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) Devices(_ context.Context) ([]models.Device, error) {
	devs := make([]models.Device, 0, len(f.devices))
	for _, dev := range f.devices {
		devs = append(devs, dev)
	}
	return devs, nil
}

func (f *fakeStore) UpdateDevice(_ context.Context, id string, upd storage.DeviceUpdate) (models.Device, error) {
	dev, ok := f.devices[id]
	if !ok {
		return models.Device{}, storage.ErrDeviceNotFound
	}
	if upd.Name != nil {
		dev.Name = *upd.Name
	}
	if upd.Emoji != nil {
		dev.Emoji = *upd.Emoji
	}
	f.devices[id] = dev
	return dev, nil
}

func (f *fakeStore) UpdateMeasurements(_ context.Context, id string, m models.Measurements) error {
	dev, ok := f.devices[id]
	if !ok {
		return storage.ErrDeviceNotFound
	}
	dev.Ph = m.Ph
	dev.Turbidity = m.Turbidity
	dev.WaterTemperature = m.WaterTemperature
	dev.Risk = m.Risk
	dev.UpdatedAt = m.UpdatedAt
	f.devices[id] = dev
	return nil
}

func (f *fakeStore) UpdateAccessKey(_ context.Context, id, accessKey string) error {
	dev, ok := f.devices[id]
	if !ok {
		return storage.ErrDeviceNotFound
	}
	dev.AccessKey = accessKey
	f.devices[id] = dev
	return nil
}

func newService(t *testing.T, store *fakeStore) (*Devices, *cache.Memory) {
	t.Helper()

	mem := cache.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })

	toks, err := tokens.New("test-secret", time.Hour, 5*time.Minute)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(log, store, mem, toks, 30*time.Minute), mem
}

func f64(v float64) *float64 { return &v }

func strptr(s string) *string { return &s }

func testDevice() models.Device {
	return models.Device{
		ID:        "deadbeef",
		UserID:    "a1b2c3d4",
		AccessKey: "stored-key",
		Name:      "Pond sensor",
		Emoji:     "🌊",
	}
}

func TestByID_CachesAfterStoreHit(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.devices["deadbeef"] = testDevice()
	svc, _ := newService(t, store)
	ctx := context.Background()

	dev, err := svc.ByID(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "Pond sensor", dev.Name)
	assert.Equal(t, 1, store.byIDCalls)

	again, err := svc.ByID(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, dev, again)
	assert.Equal(t, 1, store.byIDCalls)
}

func TestByID_NotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, newFakeStore())

	_, err := svc.ByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrDeviceNotFound)
}

func TestPublicAll_OmitsIdentityAndKey(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dev := testDevice()
	dev.Ph = f64(7.2)
	store.devices["deadbeef"] = dev
	svc, _ := newService(t, store)

	out, err := svc.PublicAll(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "deadbeef", out[0].ID)
	require.NotNil(t, out[0].Measurements.Ph)
	assert.InDelta(t, 7.2, *out[0].Measurements.Ph, 1e-9)
}

func TestChangeMeta_UpdatesAndReturnsBothStates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.devices["deadbeef"] = testDevice()
	svc, _ := newService(t, store)

	old, updated, err := svc.ChangeMeta(context.Background(), "deadbeef",
		Update{Name: strptr("Tank sensor"), Emoji: strptr("🐟")})
	require.NoError(t, err)
	assert.Equal(t, "Pond sensor", old.Name)
	assert.Equal(t, "Tank sensor", updated.Name)
	assert.Equal(t, "🐟", updated.Emoji)
}

func TestChangeMeta_UnchangedValuesRejected(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.devices["deadbeef"] = testDevice()
	svc, _ := newService(t, store)

	_, _, err := svc.ChangeMeta(context.Background(), "deadbeef",
		Update{Name: strptr("Pond sensor"), Emoji: strptr("🌊")})
	assert.ErrorIs(t, err, ErrNoNewValues)
}

func TestChangeMeta_PartialUpdateTouchesOnlyGivenField(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.devices["deadbeef"] = testDevice()
	svc, _ := newService(t, store)

	_, updated, err := svc.ChangeMeta(context.Background(), "deadbeef",
		Update{Name: strptr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "🌊", updated.Emoji)
}

func TestIngest_StoresReadingsAndStampsTime(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.devices["deadbeef"] = testDevice()
	svc, _ := newService(t, store)

	before := time.Now()
	m, err := svc.Ingest(context.Background(), "deadbeef", f64(7.0), f64(0.3), f64(21.5))
	require.NoError(t, err)

	assert.Equal(t, models.RiskLow, m.Risk)
	require.NotNil(t, m.UpdatedAt)
	assert.False(t, m.UpdatedAt.Before(before))

	stored := store.devices["deadbeef"]
	require.NotNil(t, stored.WaterTemperature)
	assert.InDelta(t, 21.5, *stored.WaterTemperature, 1e-9)
}

func TestIngest_InvalidatesCachedDevice(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.devices["deadbeef"] = testDevice()
	svc, mem := newService(t, store)
	ctx := context.Background()

	_, err := svc.ByID(ctx, "deadbeef")
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, "deadbeef", f64(6.8), nil, nil)
	require.NoError(t, err)

	ok, err := mem.Has(ctx, cache.DeviceKey("deadbeef"))
	require.NoError(t, err)
	assert.False(t, ok)

	// next read reflects the write
	dev, err := svc.ByID(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, dev.Ph)
	assert.InDelta(t, 6.8, *dev.Ph, 1e-9)
}

func TestRotateKey_NewKeyAuthenticatesOldDoesNot(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.devices["deadbeef"] = testDevice()
	svc, _ := newService(t, store)

	key, err := svc.RotateKey(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, key, store.devices["deadbeef"].AccessKey)
	assert.NotEqual(t, "stored-key", key)
}

func TestRotateKey_UnknownDevice(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, newFakeStore())

	_, err := svc.RotateKey(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrDeviceNotFound)
}

func TestDeriveRisk(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		ph        *float64
		turbidity *float64
		want      models.RiskLevel
	}{
		{"all nominal", f64(7.0), f64(0.2), models.RiskLow},
		{"no readings", nil, nil, models.RiskLow},
		{"ph slightly off", f64(6.2), nil, models.RiskMedium},
		{"ph far off", f64(5.5), nil, models.RiskHigh},
		{"ph high extreme", f64(9.4), nil, models.RiskHigh},
		{"turbidity elevated", nil, f64(2.0), models.RiskMedium},
		{"turbidity severe", nil, f64(6.0), models.RiskHigh},
		{"medium ph, severe turbidity", f64(6.2), f64(7.0), models.RiskHigh},
		{"boundary ph 6.5", f64(6.5), nil, models.RiskLow},
		{"boundary turbidity 1.0", nil, f64(1.0), models.RiskMedium},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, DeriveRisk(tc.ph, tc.turbidity))
		})
	}
}

func TestIsEmoji(t *testing.T) {
	t.Parallel()

	assert.True(t, IsEmoji("🌊"))
	assert.True(t, IsEmoji("🐟"))
	assert.True(t, IsEmoji("👍🏽"))
	assert.False(t, IsEmoji(""))
	assert.False(t, IsEmoji("ab"))
	assert.False(t, IsEmoji("🌊x"))
}
