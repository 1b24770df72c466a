package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/pricing"
	"storefront/internal/repos"
)

// AddItem is one requested cart line. Merge uses the same shape for the
// lines an anonymous session brings along at sign-in.
type AddItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	VariantID string `json:"variantId"`
}

type CartService struct {
	DB *sqlx.DB
	// Currency labels cart totals; it should match the checkout rules.
	Currency string
}

func NewCartService(db *sqlx.DB) *CartService {
	return &CartService{DB: db, Currency: domain.Currency}
}

func (s *CartService) Get(ctx context.Context, userID string) (domain.CartView, error) {
	items, err := repos.NewCartRepo(s.DB).Items(ctx, userID)
	if err != nil {
		return domain.CartView{}, err
	}
	return buildView(items, s.Currency), nil
}

func buildView(items []domain.CartItem, currency string) domain.CartView {
	v := domain.CartView{Items: items, Currency: currency}
	if v.Items == nil {
		v.Items = []domain.CartItem{}
	}
	lines := make([]pricing.Line, 0, len(items))
	for i := range v.Items {
		l := pricing.Line{Price: v.Items[i].Product.Price, Quantity: v.Items[i].Quantity}
		v.Items[i].ItemTotal = pricing.LineTotal(l)
		v.ItemCount += l.Quantity
		lines = append(lines, l)
	}
	v.Subtotal = pricing.Subtotal(lines)
	return v
}

// Add puts qty units on the cart. An existing line for the same product and
// variant grows, and the combined quantity must still fit current stock.
func (s *CartService) Add(ctx context.Context, userID string, in AddItem) (domain.CartView, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 0 {
		return domain.CartView{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		p, err := repos.NewProductRepo(tx).Get(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return fmt.Errorf("%w: %s", domain.ErrUnavailable, p.Name)
		}

		carts := repos.NewCartRepo(tx)
		existing, err := carts.Find(ctx, userID, p.ID, in.VariantID)
		if err != nil {
			return err
		}
		want := in.Quantity
		if existing != nil {
			want += existing.Quantity
		}
		if want > p.Stock {
			return &domain.StockError{ProductID: p.ID, Name: p.Name, Requested: want, Available: p.Stock}
		}
		if existing != nil {
			return carts.SetQuantity(ctx, userID, existing.ID, want)
		}
		_, err = carts.Insert(ctx, userID, p.ID, in.VariantID, want)
		return err
	})
	if err != nil {
		return domain.CartView{}, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, lineID string, qty int) (domain.CartView, error) {
	if qty < 1 {
		return domain.CartView{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		carts := repos.NewCartRepo(tx)
		line, err := carts.Line(ctx, userID, lineID)
		if err != nil {
			return err
		}
		p, err := repos.NewProductRepo(tx).Get(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if qty > p.Stock {
			return &domain.StockError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock}
		}
		return carts.SetQuantity(ctx, userID, lineID, qty)
	})
	if err != nil {
		return domain.CartView{}, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Remove(ctx context.Context, userID, lineID string) (domain.CartView, error) {
	if err := repos.NewCartRepo(s.DB).Delete(ctx, userID, lineID); err != nil {
		return domain.CartView{}, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID string) (domain.CartView, error) {
	if _, err := repos.NewCartRepo(s.DB).Clear(ctx, userID); err != nil {
		return domain.CartView{}, err
	}
	return buildView(nil, s.Currency), nil
}

// Merge folds external lines into the user's cart, capping each line at
// current stock. Lines that fail are logged and skipped; Merge itself only
// errors when the final cart cannot be read.
func (s *CartService) Merge(ctx context.Context, userID string, lines []AddItem) (domain.CartView, error) {
	for _, in := range lines {
		if err := s.mergeLine(ctx, userID, in); err != nil {
			applog.L().Warn("cart.merge.skip",
				zap.String("user_id", userID),
				zap.String("product_id", in.ProductID),
				zap.Error(err))
		}
	}
	return s.Get(ctx, userID)
}

var errSkipLine = errors.New("line skipped")

func (s *CartService) mergeLine(ctx context.Context, userID string, in AddItem) error {
	if in.Quantity < 1 {
		return fmt.Errorf("%w: quantity %d", errSkipLine, in.Quantity)
	}
	return repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		p, err := repos.NewProductRepo(tx).Get(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return fmt.Errorf("%w: %s inactive", errSkipLine, p.ID)
		}
		carts := repos.NewCartRepo(tx)
		existing, err := carts.Find(ctx, userID, p.ID, in.VariantID)
		if err != nil {
			return err
		}
		if existing != nil {
			qty := min(existing.Quantity+in.Quantity, p.Stock)
			if qty < 1 || qty == existing.Quantity {
				return nil
			}
			return carts.SetQuantity(ctx, userID, existing.ID, qty)
		}
		qty := min(in.Quantity, p.Stock)
		if qty < 1 {
			return fmt.Errorf("%w: %s out of stock", errSkipLine, p.ID)
		}
		_, err = carts.Insert(ctx, userID, p.ID, in.VariantID, qty)
		return err
	})
}
