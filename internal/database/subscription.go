package database

import (
	"context"
	"errors"

	"subscription-sync/internal/models"
	"subscription-sync/pkg/logging"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStateStore persists subscription state in the SQL database, one row per user.
type SQLStateStore struct {
	db *gorm.DB
}

// NewSQLStateStore creates a state store on top of db
func NewSQLStateStore(db *gorm.DB) *SQLStateStore {
	return &SQLStateStore{db: db}
}

// Load returns the persisted state of userID
func (s *SQLStateStore) Load(ctx context.Context, userID string) (*models.SubscriptionState, error) {
	var state models.SubscriptionState
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	return &state, nil
}

// Save creates or overwrites the state of state.UserID.
// All fields are written in one transaction; the row is locked while it is replaced.
func (s *SQLStateStore) Save(ctx context.Context, state *models.SubscriptionState) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SubscriptionState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", state.UserID).
			First(&existing).Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(state).Error
			}
			return err
		}

		if existing.ProductID != "" && existing.ProductID != state.ProductID {
			logging.Infof("Subscription product changed - user: %s, from: %s, to: %s",
				state.UserID, existing.ProductID, state.ProductID)
		}

		state.ID = existing.ID
		state.CreatedAt = existing.CreatedAt
		return tx.Save(state).Error
	})
}
