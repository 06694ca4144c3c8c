package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aquasense/internal/config"
	"aquasense/internal/models"
	"aquasense/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) CreateAccount(ctx context.Context, acc models.Account) error {
	const op = "storage.postgres.CreateAccount"

	query := `
		INSERT INTO accounts (id, name, email, password_hash, activated)
		VALUES ($1, $2, $3, $4, $5);
	`

	_, err := r.pool.Exec(ctx, query, acc.ID, acc.Name, acc.Email, acc.PassHash, acc.Activated)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrAccountExists
		}

		return fmt.Errorf("%s: failed to create account: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) AccountByID(ctx context.Context, id string) (models.Account, error) {
	const op = "storage.postgres.AccountByID"

	query := `
		SELECT id, name, email, password_hash, activated, deactivated, deactivation_date
		FROM accounts
		WHERE id = $1;
	`

	return r.scanAccount(ctx, op, query, id)
}

func (r *PostgresRepo) AccountByEmail(ctx context.Context, email string) (models.Account, error) {
	const op = "storage.postgres.AccountByEmail"

	query := `
		SELECT id, name, email, password_hash, activated, deactivated, deactivation_date
		FROM accounts
		WHERE email = $1;
	`

	return r.scanAccount(ctx, op, query, email)
}

func (r *PostgresRepo) UpdateAccount(ctx context.Context, id string, upd storage.AccountUpdate) (models.Account, error) {
	const op = "storage.postgres.UpdateAccount"

	query := `
		UPDATE accounts
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    password_hash = COALESCE($4, password_hash)
		WHERE id = $1
		RETURNING id, name, email, password_hash, activated, deactivated, deactivation_date;
	`

	row := r.pool.QueryRow(ctx, query, id, upd.Name, upd.Email, upd.PassHash)

	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PassHash, &a.Activated, &a.Deactivated, &a.DeactivationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Account{}, storage.ErrAccountExists
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func (r *PostgresRepo) DeactivateAccount(ctx context.Context, id string, when time.Time) error {
	const op = "storage.postgres.DeactivateAccount"

	query := `
		UPDATE accounts
		SET deactivated = TRUE, deactivation_date = $2
		WHERE id = $1;
	`

	tag, err := r.pool.Exec(ctx, query, id, when)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

func (r *PostgresRepo) DeleteAccount(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteAccount"

	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

// DeactivatedBefore lists ids of accounts whose deactivation predates the
// cutoff.
func (r *PostgresRepo) DeactivatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	const op = "storage.postgres.DeactivatedBefore"

	query := `
		SELECT id
		FROM accounts
		WHERE deactivated = TRUE AND deactivation_date <= $1;
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return ids, nil
}

func (r *PostgresRepo) DeviceByID(ctx context.Context, id string) (models.Device, error) {
	const op = "storage.postgres.DeviceByID"

	query := `
		SELECT id, user_id, access_key, name, emoji, ph, turbidity, water_temperature, risk, updated_at
		FROM devices
		WHERE id = $1;
	`

	row := r.pool.QueryRow(ctx, query, id)

	var d models.Device
	err := row.Scan(&d.ID, &d.UserID, &d.AccessKey, &d.Name, &d.Emoji,
		&d.Ph, &d.Turbidity, &d.WaterTemperature, &d.Risk, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, storage.ErrDeviceNotFound
		}

		return models.Device{}, fmt.Errorf("%s: %w", op, err)
	}

	return d, nil
}

func (r *PostgresRepo) DeviceIDs(ctx context.Context) ([]string, error) {
	const op = "storage.postgres.DeviceIDs"

	rows, err := r.pool.Query(ctx, `SELECT id FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return ids, nil
}

func (r *PostgresRepo) Devices(ctx context.Context) ([]models.Device, error) {
	const op = "storage.postgres.Devices"

	query := `
		SELECT id, user_id, access_key, name, emoji, ph, turbidity, water_temperature, risk, updated_at
		FROM devices;
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.AccessKey, &d.Name, &d.Emoji,
			&d.Ph, &d.Turbidity, &d.WaterTemperature, &d.Risk, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		devices = append(devices, d)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return devices, nil
}

func (r *PostgresRepo) DeviceIDsByUser(ctx context.Context, userID string) ([]string, error) {
	const op = "storage.postgres.DeviceIDsByUser"

	rows, err := r.pool.Query(ctx, `SELECT id FROM devices WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}

	return ids, nil
}

func (r *PostgresRepo) UpdateDevice(ctx context.Context, id string, upd storage.DeviceUpdate) (models.Device, error) {
	const op = "storage.postgres.UpdateDevice"

	query := `
		UPDATE devices
		SET name = COALESCE($2, name),
		    emoji = COALESCE($3, emoji)
		WHERE id = $1
		RETURNING id, user_id, access_key, name, emoji, ph, turbidity, water_temperature, risk, updated_at;
	`

	row := r.pool.QueryRow(ctx, query, id, upd.Name, upd.Emoji)

	var d models.Device
	err := row.Scan(&d.ID, &d.UserID, &d.AccessKey, &d.Name, &d.Emoji,
		&d.Ph, &d.Turbidity, &d.WaterTemperature, &d.Risk, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, storage.ErrDeviceNotFound
		}

		return models.Device{}, fmt.Errorf("%s: %w", op, err)
	}

	return d, nil
}

func (r *PostgresRepo) UpdateMeasurements(ctx context.Context, id string, m models.Measurements) error {
	const op = "storage.postgres.UpdateMeasurements"

	query := `
		UPDATE devices
		SET ph = $2, turbidity = $3, water_temperature = $4, risk = $5, updated_at = $6
		WHERE id = $1;
	`

	tag, err := r.pool.Exec(ctx, query, id, m.Ph, m.Turbidity, m.WaterTemperature, m.Risk, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDeviceNotFound
	}

	return nil
}

func (r *PostgresRepo) UpdateAccessKey(ctx context.Context, id, accessKey string) error {
	const op = "storage.postgres.UpdateAccessKey"

	tag, err := r.pool.Exec(ctx, `UPDATE devices SET access_key = $2 WHERE id = $1`, id, accessKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDeviceNotFound
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) scanAccount(ctx context.Context, op, query string, arg any) (models.Account, error) {
	row := r.pool.QueryRow(ctx, query, arg)

	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PassHash, &a.Activated, &a.Deactivated, &a.DeactivationDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return a, nil
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
