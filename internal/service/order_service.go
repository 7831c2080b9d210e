package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

const shippingDelay = 3 * 24 * time.Hour

type OrderService struct {
	orders OrderStore
	cart   CartStore
	users  UserStore
	bus    event.Bus
	now    func() time.Time
}

func NewOrderService(orders OrderStore, cart CartStore, users UserStore, bus event.Bus) *OrderService {
	return &OrderService{
		orders: orders,
		cart:   cart,
		users:  users,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Place turns the user's cart into an order. The user must have an address
// and phone on file and a non-empty cart.
func (s *OrderService) Place(ctx context.Context, userID string, req model.PlaceOrderRequest) (model.Order, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.Order{}, err
	}
	if strings.TrimSpace(user.Address) == "" || strings.TrimSpace(user.Phone) == "" {
		return model.Order{}, apierror.BadRequest("Please add an address and phone number to your profile before ordering", "")
	}

	items, err := s.cart.Items(ctx, userID)
	if err != nil {
		return model.Order{}, err
	}
	if len(items) == 0 {
		return model.Order{}, model.ErrCartEmpty
	}

	now := s.now()
	order := model.Order{
		UserID:         userID,
		Items:          make([]model.OrderItem, 0, len(items)),
		OrderDate:      now,
		ShipDate:       now.Add(shippingDelay),
		PaymentMethod:  orDefault(req.PaymentMethod, model.DefaultPaymentMethod),
		ShippingMethod: orDefault(req.ShippingMethod, model.DefaultShippingMethod),
		Total:          cartTotal(items),
		Status:         model.DefaultOrderStatus,
		Address:        user.Address,
		Phone:          user.Phone,
	}
	for _, it := range items {
		order.Items = append(order.Items, model.OrderItem{
			BikeID:    it.Bike.ID,
			Name:      it.Bike.Name,
			UnitPrice: it.Bike.Price,
			Quantity:  it.Quantity,
		})
	}

	placed, err := s.orders.Place(ctx, order)
	if err != nil {
		return model.Order{}, err
	}

	publish(s.bus, event.Event{
		Type:      event.TypeOrderPlaced,
		ActorID:   user.ID,
		ActorName: user.Username,
		ActorRole: string(user.Role),
		Resource:  strconv.FormatInt(placed.ID, 10),
		Payload:   map[string]any{"total": placed.Total, "items": len(placed.Items)},
	})

	return placed, nil
}

func (s *OrderService) ListMine(ctx context.Context, userID string) ([]model.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) ListAll(ctx context.Context) ([]model.Order, error) {
	return s.orders.ListAll(ctx)
}

func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return apierror.BadRequest("Status is required", "status")
	}
	return s.orders.UpdateStatus(ctx, id, status)
}

func (s *OrderService) Delete(ctx context.Context, id int64) error {
	return s.orders.Delete(ctx, id)
}

func orDefault(value string, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
