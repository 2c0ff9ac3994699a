package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shop is the profile owned by a signed-in user. ID is the owning user's ID.
type Shop struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	ShopCode  string    `db:"shop_code" json:"shop_code"`
	ShopName  string    `db:"shop_name" json:"shop_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Item is a catalog entry. Code is stored normalized (trimmed, upper case)
// and is unique within a shop.
type Item struct {
	ID        string          `db:"id" json:"id"`
	ShopID    string          `db:"shop_id" json:"shop_id"`
	Code      string          `db:"code" json:"code"`
	Name      string          `db:"name" json:"name"`
	Cost      decimal.Decimal `db:"cost" json:"cost"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
