package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"medcanna/m/domain"
	"medcanna/m/internal/accounts"
	"medcanna/m/internal/gate"
	"medcanna/m/internal/products"
)

// Listing is a product as shown to a caller. Price is omitted when the
// caller's tier hides prices.
type Listing struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Category string           `json:"category"`
	Supplier string           `json:"supplier"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	InStock  bool             `json:"in_stock"`
}

type View struct {
	Products                []Listing `json:"products"`
	Tier                    gate.Tier `json:"tier"`
	PriceVisible            bool      `json:"price_visible"`
	HasUploadedPrescription bool      `json:"has_uploaded_prescription"`
	HasAnvisaDocument       bool      `json:"has_anvisa_document"`
	CanPurchase             bool      `json:"can_purchase"`
}

type Service struct {
	accounts *accounts.Service
	products *products.Service
}

func New(a *accounts.Service, p *products.Service) *Service {
	return &Service{accounts: a, products: p}
}

// Query returns the active catalog for the caller. A nil userID, or one that
// no longer resolves to an account, is served as anonymous.
func (s *Service) Query(ctx context.Context, userID *int64, f products.Filter) (*View, error) {
	var user *domain.User
	if userID != nil {
		u, err := s.accounts.Get(ctx, *userID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			user = u
		}
	}
	decision := gate.Evaluate(gate.InputFor(user))

	f.ActiveOnly = true
	list, err := s.products.List(ctx, f)
	if err != nil {
		return nil, err
	}

	view := &View{
		Products:     make([]Listing, 0, len(list)),
		Tier:         decision.Tier,
		PriceVisible: decision.PriceVisible,
		CanPurchase:  decision.CanAddToCart,
	}
	if user != nil {
		view.HasUploadedPrescription = user.HasUploadedPrescription
		view.HasAnvisaDocument = user.HasAnvisaDocument
	}
	for _, p := range list {
		l := Listing{ID: p.ID, Name: p.Name, Category: p.Category, Supplier: p.Supplier, InStock: p.StockQuantity > 0}
		if decision.PriceVisible {
			price := p.Price
			l.Price = &price
		}
		view.Products = append(view.Products, l)
	}
	return view, nil
}
