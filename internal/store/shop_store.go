package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/vbonduro/shopscan/internal/domain"
)

type ShopStore struct {
	db *sqlx.DB
}

func NewShopStore(db *sqlx.DB) *ShopStore {
	return &ShopStore{db: db}
}

// Get returns the shop owned by userID, or nil if it has none yet.
func (s *ShopStore) Get(ctx context.Context, userID string) (*domain.Shop, error) {
	shop := &domain.Shop{}
	err := s.db.GetContext(ctx, shop, `
		SELECT id, email, shop_code, shop_name, created_at FROM shops WHERE id = ?
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get shop", err)
	}
	return shop, nil
}

func (s *ShopStore) Create(ctx context.Context, userID, email, shopCode, shopName string) (*domain.Shop, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, email, shop_code, shop_name) VALUES (?, ?, ?, ?)
	`, userID, email, shopCode, shopName)
	if err != nil {
		return nil, wrapErr("create shop", err)
	}
	return s.Get(ctx, userID)
}
