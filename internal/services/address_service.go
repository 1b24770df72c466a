package services

import (
	"context"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

// AddressInput is a full address as submitted by the client. Country
// defaults to ES when empty.
type AddressInput struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault"`
}

// AddressPatch carries only the fields the client sent.
type AddressPatch struct {
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Street     *string `json:"street"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	PostalCode *string `json:"postalCode"`
	Country    *string `json:"country"`
	Phone      *string `json:"phone"`
	IsDefault  *bool   `json:"isDefault"`
}

const DefaultCountry = "ES"

type AddressService struct {
	DB *sqlx.DB
}

func NewAddressService(db *sqlx.DB) *AddressService {
	return &AddressService{DB: db}
}

func (s *AddressService) List(ctx context.Context, userID string) ([]domain.Address, error) {
	return repos.NewAddressRepo(s.DB).List(ctx, userID)
}

func (s *AddressService) Create(ctx context.Context, userID string, in AddressInput) (domain.Address, error) {
	var out domain.Address
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		a, err := createAddress(ctx, repos.NewAddressRepo(tx), userID, in)
		out = a
		return err
	})
	return out, err
}

// createAddress is shared with checkout so an inline address lands in the
// order's transaction.
func createAddress(ctx context.Context, addrs *repos.AddressRepo, userID string, in AddressInput) (domain.Address, error) {
	a := domain.Address{
		UserID:     userID,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Street:     in.Street,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		Phone:      in.Phone,
		IsDefault:  in.IsDefault,
	}
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	if err := addrs.Insert(ctx, &a); err != nil {
		return domain.Address{}, err
	}
	if a.IsDefault {
		if err := addrs.UnsetDefaults(ctx, userID, a.ID); err != nil {
			return domain.Address{}, err
		}
	}
	return a, nil
}

func (s *AddressService) Update(ctx context.Context, userID, id string, p AddressPatch) (domain.Address, error) {
	var out domain.Address
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		addrs := repos.NewAddressRepo(tx)
		a, err := addrs.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		apply(&a.FirstName, p.FirstName)
		apply(&a.LastName, p.LastName)
		apply(&a.Street, p.Street)
		apply(&a.City, p.City)
		apply(&a.State, p.State)
		apply(&a.PostalCode, p.PostalCode)
		apply(&a.Country, p.Country)
		apply(&a.Phone, p.Phone)
		apply(&a.IsDefault, p.IsDefault)
		if a.Country == "" {
			a.Country = DefaultCountry
		}

		if err := addrs.Update(ctx, a); err != nil {
			return err
		}
		if a.IsDefault {
			if err := addrs.UnsetDefaults(ctx, userID, a.ID); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	return out, err
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (s *AddressService) Delete(ctx context.Context, userID, id string) error {
	return repos.NewAddressRepo(s.DB).Delete(ctx, userID, id)
}

// resolveAddress picks the order's shipping address inside the checkout
// transaction: explicit id, else a fresh inline address, else the user's
// default. A nil result means the order ships without an address.
func resolveAddress(ctx context.Context, addrs *repos.AddressRepo, userID string, addressID string, inline *AddressInput) (*domain.Address, error) {
	switch {
	case addressID != "":
		a, err := addrs.Get(ctx, userID, addressID)
		if err != nil {
			return nil, err
		}
		return &a, nil
	case inline != nil:
		a, err := createAddress(ctx, addrs, userID, *inline)
		if err != nil {
			return nil, err
		}
		return &a, nil
	}
	return addrs.Default(ctx, userID)
}
