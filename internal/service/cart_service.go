package service

import (
	"context"
	"math"
	"time"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

const maxCartQuantity = 99

type CartService struct {
	cart  CartStore
	bikes BikeStore
	now   func() time.Time
}

func NewCartService(cart CartStore, bikes BikeStore) *CartService {
	return &CartService{cart: cart, bikes: bikes, now: func() time.Time { return time.Now().UTC() }}
}

func (s *CartService) View(ctx context.Context, userID string) (model.Cart, error) {
	items, err := s.cart.Items(ctx, userID)
	if err != nil {
		return model.Cart{}, err
	}
	return model.Cart{Items: items, Total: cartTotal(items)}, nil
}

// Add sets the quantity of a bike in the cart. A zero quantity means one.
func (s *CartService) Add(ctx context.Context, userID string, req model.AddToCartRequest) (model.Cart, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > maxCartQuantity {
		return model.Cart{}, apierror.BadRequest("Quantity must be between 1 and 99", "quantity")
	}

	if _, err := s.bikes.FindByID(ctx, req.BikeID); err != nil {
		return model.Cart{}, err
	}

	if err := s.cart.Put(ctx, userID, req.BikeID, quantity, s.now()); err != nil {
		return model.Cart{}, err
	}
	return s.View(ctx, userID)
}

func (s *CartService) Remove(ctx context.Context, userID string, bikeID int64) (model.Cart, error) {
	if err := s.cart.Remove(ctx, userID, bikeID); err != nil {
		return model.Cart{}, err
	}
	return s.View(ctx, userID)
}

func cartTotal(items []model.CartItem) float64 {
	total := 0.0
	for _, it := range items {
		total += it.Bike.Price * float64(it.Quantity)
	}
	return roundCents(total)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
