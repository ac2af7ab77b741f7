package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nexuscards/battle/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var ErrUnknownDevice = errors.New("unknown or inactive device")

// DeviceStore looks up registered battle consoles.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	TouchDevice(ctx context.Context, deviceID string) error
}

type PostgresDevices struct {
	db *sqlx.DB
}

func NewPostgresDevices(db *sqlx.DB) *PostgresDevices {
	return &PostgresDevices{db: db}
}

func (p *PostgresDevices) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var d models.Device
	err := p.db.GetContext(ctx, &d, `
		SELECT device_id, secret_hash, label, is_active, created_at, last_seen_at
		FROM devices WHERE device_id = $1
	`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownDevice
	}
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	return &d, nil
}

func (p *PostgresDevices) TouchDevice(ctx context.Context, deviceID string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE devices SET last_seen_at = NOW() WHERE device_id = $1`, deviceID)
	return err
}

// CreateDevice registers a console, replacing the secret of an existing one.
func (p *PostgresDevices) CreateDevice(ctx context.Context, deviceID, label, secret string) error {
	hash, err := HashDeviceSecret(secret)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, secret_hash, label, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (device_id) DO UPDATE SET
			secret_hash = EXCLUDED.secret_hash,
			label = EXCLUDED.label,
			is_active = TRUE
	`, deviceID, hash, label)
	if err != nil {
		return fmt.Errorf("create device %s: %w", deviceID, err)
	}
	return nil
}

func HashDeviceSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash device secret: %w", err)
	}
	return string(hash), nil
}

// Devices verifies console credentials.
type Devices struct {
	store DeviceStore
}

func NewDevices(store DeviceStore) *Devices {
	return &Devices{store: store}
}

// Verify checks secret against the stored hash of an active device.
func (d *Devices) Verify(ctx context.Context, deviceID, secret string) error {
	dev, err := d.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.IsActive {
		return ErrUnknownDevice
	}
	if err := bcrypt.CompareHashAndPassword([]byte(dev.SecretHash), []byte(secret)); err != nil {
		return ErrUnknownDevice
	}
	if err := d.store.TouchDevice(ctx, deviceID); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("[AUTH] Failed to update device last seen")
	}
	return nil
}
