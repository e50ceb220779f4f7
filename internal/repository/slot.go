package repository

import (
	"context"
	"database/sql"
	"fmt"

	"critical-alerts/internal/store"

	"go.uber.org/zap"
)

// SlotRepository 基于 PostgreSQL 的持久化槽位（实现 store.KV）
// 表结构见 Schema
type SlotRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// Schema 槽位表 DDL
const Schema = `
CREATE TABLE IF NOT EXISTS critical_notification_slots (
	slot_key   TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// NewSlotRepository 创建槽位仓库
func NewSlotRepository(db *sql.DB, logger *zap.Logger) *SlotRepository {
	return &SlotRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 创建槽位表（幂等）
func (r *SlotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create slot table: %w", err)
	}
	return nil
}

// Get 读取槽位内容
func (r *SlotRepository) Get(ctx context.Context, key string) (string, error) {
	query := `
		SELECT payload
		FROM critical_notification_slots
		WHERE slot_key = $1
	`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", store.ErrSlotMiss
		}
		return "", fmt.Errorf("failed to query slot: %w", err)
	}

	return string(payload), nil
}

// Set 写入槽位内容（UPSERT）
func (r *SlotRepository) Set(ctx context.Context, key string, value string) error {
	query := `
		INSERT INTO critical_notification_slots (slot_key, payload, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (slot_key) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to upsert slot: %w", err)
	}

	r.logger.Debug("Slot persisted",
		zap.String("slot_key", key),
		zap.Int("payload_bytes", len(value)),
	)
	return nil
}

// Del 删除槽位
func (r *SlotRepository) Del(ctx context.Context, key string) error {
	query := `DELETE FROM critical_notification_slots WHERE slot_key = $1`

	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	return nil
}
