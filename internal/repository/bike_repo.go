package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
)

const bikeColumns = `id, name, price, image, brand, type, year, capacity, drive_mode, technology, description`

type BikeRepository struct {
	pool *pgxpool.Pool
}

func NewBikeRepository(pool *pgxpool.Pool) *BikeRepository {
	return &BikeRepository{pool: pool}
}

func scanBike(row pgx.Row) (model.Bike, error) {
	var b model.Bike
	err := row.Scan(&b.ID, &b.Name, &b.Price, &b.Image, &b.Brand, &b.Type, &b.Year,
		&b.Capacity, &b.DriveMode, &b.Technology, &b.Description)
	return b, err
}

func (r *BikeRepository) List(ctx context.Context) ([]model.Bike, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bikeColumns+` FROM bikes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list bikes: %w", err)
	}
	defer rows.Close()

	bikes := make([]model.Bike, 0)
	for rows.Next() {
		b, err := scanBike(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bike: %w", err)
		}
		bikes = append(bikes, b)
	}
	return bikes, rows.Err()
}

func (r *BikeRepository) FindByID(ctx context.Context, id int64) (model.Bike, error) {
	b, err := scanBike(r.pool.QueryRow(ctx, `SELECT `+bikeColumns+` FROM bikes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bike{}, model.ErrBikeNotFound
	}
	if err != nil {
		return model.Bike{}, fmt.Errorf("find bike: %w", err)
	}
	return b, nil
}

func (r *BikeRepository) Create(ctx context.Context, b model.Bike) (model.Bike, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO bikes (name, price, image, brand, type, year, capacity, drive_mode, technology, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		b.Name, b.Price, b.Image, b.Brand, b.Type, b.Year, b.Capacity, b.DriveMode, b.Technology, b.Description).
		Scan(&b.ID)
	if err != nil {
		return model.Bike{}, fmt.Errorf("create bike: %w", err)
	}
	return b, nil
}

func (r *BikeRepository) Update(ctx context.Context, b model.Bike) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bikes SET name = $2, price = $3, image = $4, brand = $5, type = $6, year = $7,
		        capacity = $8, drive_mode = $9, technology = $10, description = $11
		 WHERE id = $1`,
		b.ID, b.Name, b.Price, b.Image, b.Brand, b.Type, b.Year, b.Capacity, b.DriveMode, b.Technology, b.Description)
	if err != nil {
		return fmt.Errorf("update bike: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrBikeNotFound
	}
	return nil
}

func (r *BikeRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bikes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bike: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrBikeNotFound
	}
	return nil
}

func (r *BikeRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bikes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count bikes: %w", err)
	}
	return count, nil
}
