package services

import (
	"context"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

func SetBeforeDecrement(s *OrderService, f func(ctx context.Context, tx *sqlx.Tx) error) {
	s.beforeDecrement = f
}

func SetReadBack(s *OrderService, f func(ctx context.Context, scope, id string) (domain.Order, error)) {
	s.readBack = f
}
