package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/shopscan/internal/domain"
)

// itemRepository is the subset of store.ItemStore that ShopService requires.
type itemRepository interface {
	Create(ctx context.Context, shopID, code, name string, cost decimal.Decimal) (*domain.Item, error)
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	FindByCode(ctx context.Context, code string) (*domain.Item, error)
	ListByShop(ctx context.Context, shopID string) ([]*domain.Item, error)
	Update(ctx context.Context, shopID, id, code, name string, cost decimal.Decimal) error
	Delete(ctx context.Context, shopID, id string) error
}

// shopRepository is the subset of store.ShopStore that ShopService requires.
type shopRepository interface {
	Get(ctx context.Context, userID string) (*domain.Shop, error)
	Create(ctx context.Context, userID, email, shopCode, shopName string) (*domain.Shop, error)
}

const (
	shopCodeBytes  = 3
	itemCodeLength = 6
	itemCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// shop codes are random; retry a few times on the unlikely collision.
	shopCodeAttempts = 5
)

type ShopService struct {
	itemStore itemRepository
	shopStore shopRepository
	logger    *slog.Logger
}

func NewShopService(itemStore itemRepository, shopStore shopRepository, logger *slog.Logger) *ShopService {
	return &ShopService{
		itemStore: itemStore,
		shopStore: shopStore,
		logger:    logger,
	}
}

// ItemInput is the editable part of an item. An empty Code is replaced by a
// generated one.
type ItemInput struct {
	Code string
	Name string
	Cost decimal.Decimal
}

// EnsureShop returns the user's shop, creating it with a fresh shop code if
// it does not exist yet.
func (s *ShopService) EnsureShop(ctx context.Context, userID, email, shopName string) (*domain.Shop, error) {
	shop, err := s.shopStore.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if shop != nil {
		return shop, nil
	}

	for attempt := 0; attempt < shopCodeAttempts; attempt++ {
		code, err := GenerateShopCode()
		if err != nil {
			return nil, err
		}
		shop, err = s.shopStore.Create(ctx, userID, email, code, strings.TrimSpace(shopName))
		if errors.Is(err, domain.ErrConflict) {
			// Either the code collided or a concurrent request created the shop.
			if existing, gerr := s.shopStore.Get(ctx, userID); gerr == nil && existing != nil {
				return existing, nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("shop created", "shop_id", shop.ID, "shop_code", shop.ShopCode)
		return shop, nil
	}
	return nil, fmt.Errorf("failed to allocate a unique shop code: %w", domain.ErrConflict)
}

// GetShop returns the user's shop or domain.ErrNotFound.
func (s *ShopService) GetShop(ctx context.Context, userID string) (*domain.Shop, error) {
	shop, err := s.shopStore.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, fmt.Errorf("shop for user %s: %w", userID, domain.ErrNotFound)
	}
	return shop, nil
}

func (s *ShopService) ListItems(ctx context.Context, shop *domain.Shop) ([]*domain.Item, error) {
	return s.itemStore.ListByShop(ctx, shop.ID)
}

func (s *ShopService) CreateItem(ctx context.Context, shop *domain.Shop, in ItemInput) (*domain.Item, error) {
	in, err := s.prepare(shop, in)
	if err != nil {
		return nil, err
	}
	item, err := s.itemStore.Create(ctx, shop.ID, in.Code, in.Name, in.Cost)
	if err != nil {
		return nil, err
	}
	s.logger.Info("item created", "shop_id", shop.ID, "item_id", item.ID, "code", item.Code)
	return item, nil
}

func (s *ShopService) UpdateItem(ctx context.Context, shop *domain.Shop, id string, in ItemInput) (*domain.Item, error) {
	in, err := s.prepare(shop, in)
	if err != nil {
		return nil, err
	}
	if err := s.itemStore.Update(ctx, shop.ID, id, in.Code, in.Name, in.Cost); err != nil {
		return nil, err
	}
	return s.itemStore.GetByID(ctx, id)
}

func (s *ShopService) DeleteItem(ctx context.Context, shop *domain.Shop, id string) error {
	if err := s.itemStore.Delete(ctx, shop.ID, id); err != nil {
		return err
	}
	s.logger.Info("item deleted", "shop_id", shop.ID, "item_id", id)
	return nil
}

// FindByCode looks a code up across all shops and returns domain.ErrNotFound
// when no item has it.
func (s *ShopService) FindByCode(ctx context.Context, code string) (*domain.Item, error) {
	item, err := s.itemStore.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item with code %q: %w", code, domain.ErrNotFound)
	}
	return item, nil
}

func (s *ShopService) prepare(shop *domain.Shop, in ItemInput) (ItemInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, fmt.Errorf("%w: item name is required", domain.ErrValidation)
	}
	if in.Cost.IsNegative() {
		return in, fmt.Errorf("%w: item cost must not be negative", domain.ErrValidation)
	}
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if in.Code == "" {
		code, err := GenerateItemCode(shop.ShopCode)
		if err != nil {
			return in, err
		}
		in.Code = code
	}
	return in, nil
}

// GenerateShopCode returns six random upper-case hex characters.
func GenerateShopCode() (string, error) {
	buf := make([]byte, shopCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating shop code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// GenerateItemCode returns "<shopCode>-XXXXXX" with X drawn from A-Z0-9.
func GenerateItemCode(shopCode string) (string, error) {
	var b strings.Builder
	b.WriteString(shopCode)
	b.WriteByte('-')
	max := big.NewInt(int64(len(itemCodeChars)))
	for i := 0; i < itemCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating item code: %w", err)
		}
		b.WriteByte(itemCodeChars[n.Int64()])
	}
	return b.String(), nil
}
