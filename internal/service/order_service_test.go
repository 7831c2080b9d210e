package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/repository"
)

func TestOrderServicePlace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	users := repository.NewMemoryUserRepository()
	bikes := repository.NewMemoryBikeRepository()
	cartRepo := repository.NewMemoryCartRepository(bikes)
	bus := event.NewBus(discardLogger())
	orders := NewOrderService(repository.NewMemoryOrderRepository(cartRepo), cartRepo, users, bus)
	cart := NewCartService(cartRepo, bikes)

	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	orders.now = func() time.Time { return fixed }

	buyer := seedUser(t, users, "buyer", func(u *model.User) {
		u.Address = "7 Throttle Road"
		u.Phone = "0911222333"
	})
	noAddress := seedUser(t, users, "drifter", nil)

	bike, err := bikes.Create(ctx, model.Bike{Name: "MT-07", Price: 7999})
	require.NoError(t, err)

	_, err = orders.Place(ctx, buyer.ID, model.PlaceOrderRequest{})
	require.ErrorIs(t, err, model.ErrCartEmpty)

	_, err = cart.Add(ctx, noAddress.ID, model.AddToCartRequest{BikeID: bike.ID})
	require.NoError(t, err)
	_, err = orders.Place(ctx, noAddress.ID, model.PlaceOrderRequest{})
	requireBadRequest(t, err, "")

	_, err = cart.Add(ctx, buyer.ID, model.AddToCartRequest{BikeID: bike.ID, Quantity: 2})
	require.NoError(t, err)

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	placed, err := orders.Place(ctx, buyer.ID, model.PlaceOrderRequest{ShippingMethod: "Express"})
	require.NoError(t, err)
	assert.Equal(t, fixed, placed.OrderDate)
	assert.Equal(t, fixed.AddDate(0, 0, 3), placed.ShipDate)
	assert.Equal(t, model.DefaultPaymentMethod, placed.PaymentMethod)
	assert.Equal(t, "Express", placed.ShippingMethod)
	assert.Equal(t, model.DefaultOrderStatus, placed.Status)
	assert.InDelta(t, 15998.0, placed.Total, 0.001)
	assert.Equal(t, "7 Throttle Road", placed.Address)
	require.Len(t, placed.Items, 1)
	assert.Equal(t, "MT-07", placed.Items[0].Name)

	e := <-events
	assert.Equal(t, event.TypeOrderPlaced, e.Type)
	assert.Equal(t, buyer.ID, e.ActorID)

	view, err := cart.View(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items, "placing an order empties the cart")

	mine, err := orders.ListMine(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	requireBadRequest(t, orders.UpdateStatus(ctx, placed.ID, "  "), "Status is required")
	require.NoError(t, orders.UpdateStatus(ctx, placed.ID, "shipped"))
	require.ErrorIs(t, orders.UpdateStatus(ctx, 9999, "shipped"), model.ErrOrderNotFound)

	all, err := orders.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "shipped", all[0].Status)

	require.NoError(t, orders.Delete(ctx, placed.ID))
	require.ErrorIs(t, orders.Delete(ctx, placed.ID), model.ErrOrderNotFound)
}
