package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Items returns the user's cart lines joined with their bikes, oldest first.
func (r *CartRepository) Items(ctx context.Context, userID string) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.id, b.name, b.price, b.image, b.brand, b.type, b.year, b.capacity, b.drive_mode,
		        b.technology, b.description, c.quantity, c.added_at
		 FROM cart_items c
		 JOIN bikes b ON b.id = c.bike_id
		 WHERE c.user_id = $1
		 ORDER BY c.added_at, b.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := make([]model.CartItem, 0)
	for rows.Next() {
		var it model.CartItem
		b := &it.Bike
		if err := rows.Scan(&b.ID, &b.Name, &b.Price, &b.Image, &b.Brand, &b.Type, &b.Year, &b.Capacity,
			&b.DriveMode, &b.Technology, &b.Description, &it.Quantity, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Put sets the quantity for a bike, keeping the original added_at when the line exists.
func (r *CartRepository) Put(ctx context.Context, userID string, bikeID int64, quantity int, addedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cart_items (user_id, bike_id, quantity, added_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, bike_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		userID, bikeID, quantity, addedAt)
	if err != nil {
		return fmt.Errorf("put cart item: %w", err)
	}
	return nil
}

func (r *CartRepository) Remove(ctx context.Context, userID string, bikeID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND bike_id = $2`, userID, bikeID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrBikeNotFound
	}
	return nil
}
