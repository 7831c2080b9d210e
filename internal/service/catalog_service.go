package service

import (
	"context"
	"strings"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

type CatalogService struct {
	bikes BikeStore
}

func NewCatalogService(bikes BikeStore) *CatalogService {
	return &CatalogService{bikes: bikes}
}

func (s *CatalogService) List(ctx context.Context) ([]model.Bike, error) {
	return s.bikes.List(ctx)
}

func (s *CatalogService) Get(ctx context.Context, id int64) (model.Bike, error) {
	return s.bikes.FindByID(ctx, id)
}

func (s *CatalogService) Create(ctx context.Context, b model.Bike) (model.Bike, error) {
	b, err := normalizeBike(b)
	if err != nil {
		return model.Bike{}, err
	}
	return s.bikes.Create(ctx, b)
}

func (s *CatalogService) Update(ctx context.Context, id int64, b model.Bike) (model.Bike, error) {
	b, err := normalizeBike(b)
	if err != nil {
		return model.Bike{}, err
	}
	b.ID = id
	if err := s.bikes.Update(ctx, b); err != nil {
		return model.Bike{}, err
	}
	return b, nil
}

func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	return s.bikes.Delete(ctx, id)
}

func normalizeBike(b model.Bike) (model.Bike, error) {
	b.Name = strings.TrimSpace(b.Name)
	b.Brand = strings.TrimSpace(b.Brand)
	b.Type = strings.TrimSpace(b.Type)
	b.Image = strings.TrimSpace(b.Image)

	if b.Name == "" {
		return model.Bike{}, apierror.BadRequest("Bike name is required", "name")
	}
	if b.Price < 0 {
		return model.Bike{}, apierror.BadRequest("Price cannot be negative", "price")
	}
	if b.Year < 0 {
		return model.Bike{}, apierror.BadRequest("Year cannot be negative", "year")
	}
	return b, nil
}
