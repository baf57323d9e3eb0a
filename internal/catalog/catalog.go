// Package catalog provides the bounded commerce lookups used by AI tool
// execution. The full commerce CRUD lives in other services.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/model"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	var items []model.Product
	tx := s.db.WithContext(ctx).Model(&model.Product{})
	if query != "" {
		like := "%" + query + "%"
		tx = tx.Where("name ILIKE ? OR category ILIKE ?", like, like)
	}
	if err := tx.Order("name ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return items, nil
}

func (s *Store) ShippingFee(ctx context.Context, region string) (*model.ShippingZone, error) {
	var zone model.ShippingZone
	err := s.db.WithContext(ctx).Where("region ILIKE ?", region).First(&zone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Unknown regions fall back to the default zone when one exists.
		err = s.db.WithContext(ctx).Where("region = ?", "default").First(&zone).Error
	}
	if err != nil {
		return nil, fmt.Errorf("shipping fee for %q: %w", region, err)
	}
	return &zone, nil
}

func (s *Store) ActivePromotions(ctx context.Context, limit int) ([]model.Promotion, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	var promos []model.Promotion
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("discount_percent DESC").
		Limit(limit).
		Find(&promos).Error
	if err != nil {
		return nil, fmt.Errorf("active promotions: %w", err)
	}
	return promos, nil
}
