// Package authz tracks which operators have supplied the correct passphrase.
package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oxang/groupforge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store records operators who have passed the passphrase gate. Entries are
// never removed by the bot itself; Revoke exists for the CLI admin command.
type Store interface {
	// IsAuthorized reports whether the operator has ever passed the gate.
	IsAuthorized(ctx context.Context, operatorID int64) (bool, error)
	// Authorize marks the operator as having passed. Idempotent.
	Authorize(ctx context.Context, operatorID int64) error
	// Revoke removes the operator's record. Removing a missing record is not
	// an error.
	Revoke(ctx context.Context, operatorID int64) error
	// List returns all authorization records, oldest first.
	List(ctx context.Context) ([]models.Operator, error)
}

// GormStore implements Store on a gorm database with a write-through
// in-memory cache, so the hot IsAuthorized path on every inbound message
// does not hit the database.
type GormStore struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[int64]bool
}

// NewGormStore creates a GormStore and warms the cache from the database.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("authz: db is required")
	}
	s := &GormStore{db: db, cache: make(map[int64]bool)}

	var ops []models.Operator
	if err := db.Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("authz: warm cache: %w", err)
	}
	for _, op := range ops {
		s.cache[op.OperatorID] = true
	}
	return s, nil
}

// IsAuthorized reports whether the operator has ever passed the gate.
func (s *GormStore) IsAuthorized(ctx context.Context, operatorID int64) (bool, error) {
	s.mu.RLock()
	ok := s.cache[operatorID]
	s.mu.RUnlock()
	if ok {
		return true, nil
	}

	// Another instance may have written the row since the cache was warmed.
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Operator{}).
		Where("operator_id = ?", operatorID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("authz: lookup operator %d: %w", operatorID, err)
	}
	if count > 0 {
		s.mu.Lock()
		s.cache[operatorID] = true
		s.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// Authorize marks the operator as having passed the gate. The upsert is
// atomic: concurrent calls for the same operator leave exactly one row.
func (s *GormStore) Authorize(ctx context.Context, operatorID int64) error {
	op := models.Operator{
		OperatorID:   operatorID,
		AuthorizedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "operator_id"}},
		DoNothing: true,
	}).Create(&op).Error
	if err != nil {
		return fmt.Errorf("authz: authorize operator %d: %w", operatorID, err)
	}

	s.mu.Lock()
	s.cache[operatorID] = true
	s.mu.Unlock()
	return nil
}

// Revoke removes the operator's authorization record.
func (s *GormStore) Revoke(ctx context.Context, operatorID int64) error {
	err := s.db.WithContext(ctx).
		Where("operator_id = ?", operatorID).
		Delete(&models.Operator{}).Error
	if err != nil {
		return fmt.Errorf("authz: revoke operator %d: %w", operatorID, err)
	}

	s.mu.Lock()
	delete(s.cache, operatorID)
	s.mu.Unlock()
	return nil
}

// List returns all authorization records, oldest first.
func (s *GormStore) List(ctx context.Context) ([]models.Operator, error) {
	var ops []models.Operator
	err := s.db.WithContext(ctx).Order("authorized_at").Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("authz: list operators: %w", err)
	}
	return ops, nil
}
