package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

type AddressRepo struct{ db Querier }

func NewAddressRepo(db Querier) *AddressRepo { return &AddressRepo{db: db} }

const addressCols = `id, user_id, first_name, last_name, street, city, state, postal_code, country, phone, is_default, created_at`

// List returns the default address first, then newest first.
func (r *AddressRepo) List(ctx context.Context, userID string) ([]domain.Address, error) {
	out := []domain.Address{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+addressCols+` FROM addresses
		WHERE user_id = ?
		ORDER BY is_default DESC, created_at DESC, id
	`, userID)
	return out, err
}

func (r *AddressRepo) Get(ctx context.Context, userID, id string) (domain.Address, error) {
	var a domain.Address
	err := r.db.GetContext(ctx, &a, `SELECT `+addressCols+` FROM addresses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return domain.Address{}, notFound(err, "address")
	}
	return a, nil
}

// ByID reads an address without an owner check; used to attach the
// shipping address to an order that has already been authorized.
func (r *AddressRepo) ByID(ctx context.Context, id string) (*domain.Address, error) {
	var a domain.Address
	err := r.db.GetContext(ctx, &a, `SELECT `+addressCols+` FROM addresses WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Default returns the user's default address, nil when there is none.
func (r *AddressRepo) Default(ctx context.Context, userID string) (*domain.Address, error) {
	var a domain.Address
	err := r.db.GetContext(ctx, &a, `
		SELECT `+addressCols+` FROM addresses
		WHERE user_id = ? AND is_default = 1
		ORDER BY created_at DESC LIMIT 1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Insert stores a new address and fills in ID and CreatedAt.
func (r *AddressRepo) Insert(ctx context.Context, a *domain.Address) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO addresses(`+addressCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.FirstName, a.LastName, a.Street, a.City, a.State, a.PostalCode, a.Country, a.Phone, a.IsDefault, a.CreatedAt)
	return err
}

func (r *AddressRepo) Update(ctx context.Context, a domain.Address) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE addresses
		SET first_name = ?, last_name = ?, street = ?, city = ?, state = ?, postal_code = ?,
		    country = ?, phone = ?, is_default = ?
		WHERE id = ? AND user_id = ?
	`, a.FirstName, a.LastName, a.Street, a.City, a.State, a.PostalCode, a.Country, a.Phone, a.IsDefault, a.ID, a.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: address", domain.ErrNotFound)
	}
	return nil
}

func (r *AddressRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: address", domain.ErrNotFound)
	}
	return nil
}

// UnsetDefaults clears is_default on every address of the user except keepID.
func (r *AddressRepo) UnsetDefaults(ctx context.Context, userID, keepID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE addresses SET is_default = 0 WHERE user_id = ? AND id <> ? AND is_default = 1
	`, userID, keepID)
	return err
}
