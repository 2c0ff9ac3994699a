package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/vbonduro/shopscan/internal/domain"
)

const itemColumns = `id, shop_id, code, name, cost, created_at, updated_at`

type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *ItemStore) Create(ctx context.Context, shopID, code, name string, cost decimal.Decimal) (*domain.Item, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, shop_id, code, name, cost) VALUES (?, ?, ?, ?, ?)
	`, id, shopID, normalizeCode(code), name, cost.String())
	if err != nil {
		return nil, wrapErr("create item", err)
	}

	return s.GetByID(ctx, id)
}

func (s *ItemStore) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	item := &domain.Item{}
	err := s.db.GetContext(ctx, item, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get item", err)
	}
	return item, nil
}

// FindByCode searches every shop. When several shops use the same code the
// oldest item wins.
func (s *ItemStore) FindByCode(ctx context.Context, code string) (*domain.Item, error) {
	item := &domain.Item{}
	err := s.db.GetContext(ctx, item, `
		SELECT `+itemColumns+` FROM items
		WHERE code = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`, normalizeCode(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find item by code", err)
	}
	return item, nil
}

func (s *ItemStore) ListByShop(ctx context.Context, shopID string) ([]*domain.Item, error) {
	var items []*domain.Item
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM items
		WHERE shop_id = ? ORDER BY name ASC
	`, shopID)
	if err != nil {
		return nil, wrapErr("list items", err)
	}
	return items, nil
}

// Update changes an item owned by shopID.
func (s *ItemStore) Update(ctx context.Context, shopID, id, code, name string, cost decimal.Decimal) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET code = ?, name = ?, cost = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND shop_id = ?
	`, normalizeCode(code), name, cost.String(), id, shopID)
	if err != nil {
		return wrapErr("update item", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// Delete removes an item owned by shopID.
func (s *ItemStore) Delete(ctx context.Context, shopID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM items WHERE id = ? AND shop_id = ?
	`, id, shopID)
	if err != nil {
		return wrapErr("delete item", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}

	return nil
}
