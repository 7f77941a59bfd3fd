// Package store wraps the relational system of record behind the narrow
// interfaces the gateway consumes. Resource and domain rows are owned by
// the account-facing product; the gateway reads them, increments visit
// counts and appends audit rows, nothing else.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pagegate-org/pagegate/internal/faults"
	"github.com/pagegate-org/pagegate/internal/models"
	"gorm.io/gorm"
)

type ResourceStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.ProtectedResource, error)
	GetByID(ctx context.Context, resourceID uint) (*models.ProtectedResource, error)
	IncrementVisits(ctx context.Context, resourceID uint) error
}

type DomainStore interface {
	GetByHostname(ctx context.Context, hostname string) (*models.CustomDomainBinding, error)
}

type AuditSink interface {
	AppendAttempt(ctx context.Context, attempt *models.AccessAttempt) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetBySlug(ctx context.Context, slug string) (*models.ProtectedResource, error) {
	var resource models.ProtectedResource
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&resource).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, faults.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resource lookup: %v", faults.ErrStoreUnavailable, err)
	}
	return &resource, nil
}

func (s *GormStore) GetByID(ctx context.Context, resourceID uint) (*models.ProtectedResource, error) {
	var resource models.ProtectedResource
	err := s.db.WithContext(ctx).First(&resource, resourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, faults.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resource lookup: %v", faults.ErrStoreUnavailable, err)
	}
	return &resource, nil
}

// IncrementVisits runs a single UPDATE so concurrent gateway instances
// never lose counts to read-modify-write races.
func (s *GormStore) IncrementVisits(ctx context.Context, resourceID uint) error {
	err := s.db.WithContext(ctx).
		Model(&models.ProtectedResource{}).
		Where("id = ?", resourceID).
		UpdateColumn("visit_count", gorm.Expr("visit_count + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("%w: visit increment: %v", faults.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *GormStore) GetByHostname(ctx context.Context, hostname string) (*models.CustomDomainBinding, error) {
	var binding models.CustomDomainBinding
	err := s.db.WithContext(ctx).Where("domain = ?", hostname).First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, faults.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: domain lookup: %v", faults.ErrStoreUnavailable, err)
	}
	return &binding, nil
}

func (s *GormStore) AppendAttempt(ctx context.Context, attempt *models.AccessAttempt) error {
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("%w: audit append: %v", faults.ErrStoreUnavailable, err)
	}
	return nil
}
