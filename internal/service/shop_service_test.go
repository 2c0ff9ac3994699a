package service

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/shopscan/internal/db"
	"github.com/vbonduro/shopscan/internal/domain"
	"github.com/vbonduro/shopscan/internal/store"
)

type testEnv struct {
	svc   *ShopService
	users *store.UserStore
}

func newTestService(t *testing.T) (*testEnv, func()) {
	t.Helper()
	sqlDB, err := db.OpenForTesting()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewShopService(store.NewItemStore(sqlDB), store.NewShopStore(sqlDB), logger)
	return &testEnv{svc: svc, users: store.NewUserStore(sqlDB)}, func() { _ = sqlDB.Close() }
}

func (e *testEnv) shop(t *testing.T, email string) *domain.Shop {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.Create(ctx, email, "hash")
	require.NoError(t, err)
	shop, err := e.svc.EnsureShop(ctx, u.ID, email, "Corner Store")
	require.NoError(t, err)
	return shop
}

var (
	shopCodePattern = regexp.MustCompile(`^[0-9A-F]{6}$`)
	itemCodePattern = regexp.MustCompile(`^[0-9A-F]{6}-[A-Z0-9]{6}$`)
)

func TestShopServiceEnsureShopCreatesOnce(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	u, err := env.users.Create(ctx, "owner@example.com", "hash")
	require.NoError(t, err)

	first, err := env.svc.EnsureShop(ctx, u.ID, "owner@example.com", "  Corner Store ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, first.ID)
	assert.Equal(t, "Corner Store", first.ShopName)
	assert.Regexp(t, shopCodePattern, first.ShopCode)

	second, err := env.svc.EnsureShop(ctx, u.ID, "owner@example.com", "Other Name")
	require.NoError(t, err)
	assert.Equal(t, first.ShopCode, second.ShopCode)
	assert.Equal(t, "Corner Store", second.ShopName)
}

func TestShopServiceGetShopMissing(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()

	_, err := env.svc.GetShop(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestShopServiceCreateItem(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	shop := env.shop(t, "owner@example.com")

	item, err := env.svc.CreateItem(context.Background(), shop, ItemInput{
		Code: " abc123 ",
		Name: " Soap ",
		Cost: decimal.RequireFromString("45.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", item.Code)
	assert.Equal(t, "Soap", item.Name)
	assert.True(t, decimal.RequireFromString("45.5").Equal(item.Cost))
	assert.Equal(t, shop.ID, item.ShopID)
}

func TestShopServiceCreateItemGeneratesCode(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	shop := env.shop(t, "owner@example.com")

	item, err := env.svc.CreateItem(context.Background(), shop, ItemInput{
		Name: "Bread",
		Cost: decimal.RequireFromString("2.25"),
	})
	require.NoError(t, err)
	assert.Regexp(t, itemCodePattern, item.Code)
	assert.Equal(t, shop.ShopCode+"-", item.Code[:7])
}

func TestShopServiceCreateItemValidation(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	shop := env.shop(t, "owner@example.com")

	tests := []struct {
		name string
		in   ItemInput
	}{
		{"blank name", ItemInput{Code: "X1", Name: "   ", Cost: decimal.NewFromInt(1)}},
		{"negative cost", ItemInput{Code: "X1", Name: "Thing", Cost: decimal.RequireFromString("-0.01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateItem(context.Background(), shop, tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestShopServiceCreateItemDuplicateCode(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	shop := env.shop(t, "owner@example.com")
	ctx := context.Background()

	_, err := env.svc.CreateItem(ctx, shop, ItemInput{Code: "DUP", Name: "One", Cost: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = env.svc.CreateItem(ctx, shop, ItemInput{Code: "dup", Name: "Two", Cost: decimal.NewFromInt(2)})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestShopServiceUpdateAndDeleteItem(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	shop := env.shop(t, "owner@example.com")
	ctx := context.Background()

	item, err := env.svc.CreateItem(ctx, shop, ItemInput{Code: "MILK", Name: "Milk", Cost: decimal.RequireFromString("1.20")})
	require.NoError(t, err)

	updated, err := env.svc.UpdateItem(ctx, shop, item.ID, ItemInput{Code: "milk1", Name: "Whole Milk", Cost: decimal.RequireFromString("1.35")})
	require.NoError(t, err)
	assert.Equal(t, "MILK1", updated.Code)
	assert.Equal(t, "Whole Milk", updated.Name)

	require.NoError(t, env.svc.DeleteItem(ctx, shop, item.ID))
	_, err = env.svc.FindByCode(ctx, "MILK1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestShopServiceItemsScopedToShop(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	mine := env.shop(t, "mine@example.com")
	theirs := env.shop(t, "theirs@example.com")

	item, err := env.svc.CreateItem(ctx, theirs, ItemInput{Code: "TEA", Name: "Tea", Cost: decimal.NewFromInt(3)})
	require.NoError(t, err)

	err = env.svc.DeleteItem(ctx, mine, item.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.UpdateItem(ctx, mine, item.ID, ItemInput{Code: "TEA", Name: "Stolen", Cost: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	items, err := env.svc.ListItems(ctx, mine)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestShopServiceFindByCodeCrossShop(t *testing.T) {
	env, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()
	other := env.shop(t, "other@example.com")

	_, err := env.svc.CreateItem(ctx, other, ItemInput{Code: "ABC123", Name: "Soap", Cost: decimal.RequireFromString("45.50")})
	require.NoError(t, err)

	item, err := env.svc.FindByCode(ctx, " abc123")
	require.NoError(t, err)
	assert.Equal(t, "Soap", item.Name)
}

func TestGenerateCodes(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateShopCode()
		require.NoError(t, err)
		assert.Regexp(t, shopCodePattern, code)

		item, err := GenerateItemCode(code)
		require.NoError(t, err)
		assert.Regexp(t, itemCodePattern, item)
		seen[item] = true
	}
	assert.Greater(t, len(seen), 45)
}
