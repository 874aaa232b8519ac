package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"subscription-sync/internal/models"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "subscription_state:"

// Field names of the persisted state hash. The set is fixed.
const (
	fieldIsSubscribed      = "is_subscribed"
	fieldProductID         = "product_id"
	fieldLastPremiumPlan   = "last_premium_plan"
	fieldLastPurchaseDate  = "last_purchase_date"
	fieldFirstPurchaseDate = "first_purchase_date"
	fieldExpirationDate    = "expiration_date"
	fieldStatusMessage     = "status_message"
	fieldUpdatedAt         = "updated_at"
)

// RedisStateStore persists subscription state as one Redis hash per user.
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a state store on top of client
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func stateKey(userID string) string {
	return stateKeyPrefix + userID
}

// Load returns the persisted state of userID
func (s *RedisStateStore) Load(ctx context.Context, userID string) (*models.SubscriptionState, error) {
	fields, err := s.client.HGetAll(ctx, stateKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrStateNotFound
	}

	state := &models.SubscriptionState{
		UserID:          userID,
		ProductID:       fields[fieldProductID],
		LastPremiumPlan: fields[fieldLastPremiumPlan],
		StatusMessage:   fields[fieldStatusMessage],
	}
	if state.IsSubscribed, err = strconv.ParseBool(fields[fieldIsSubscribed]); err != nil {
		return nil, fmt.Errorf("invalid %s for user %s: %w", fieldIsSubscribed, userID, err)
	}

	dates := []struct {
		field string
		dst   *time.Time
	}{
		{fieldLastPurchaseDate, &state.LastPurchaseDate},
		{fieldFirstPurchaseDate, &state.FirstPurchaseDate},
		{fieldExpirationDate, &state.ExpirationDate},
		{fieldUpdatedAt, &state.UpdatedAt},
	}
	for _, d := range dates {
		if *d.dst, err = parseStoredTime(fields[d.field]); err != nil {
			return nil, fmt.Errorf("invalid %s for user %s: %w", d.field, userID, err)
		}
	}

	return state, nil
}

// Save writes every field of the state in a single MULTI/EXEC block.
func (s *RedisStateStore) Save(ctx context.Context, state *models.SubscriptionState) error {
	state.UpdatedAt = time.Now().UTC()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, stateKey(state.UserID), map[string]interface{}{
			fieldIsSubscribed:      strconv.FormatBool(state.IsSubscribed),
			fieldProductID:         state.ProductID,
			fieldLastPremiumPlan:   state.LastPremiumPlan,
			fieldLastPurchaseDate:  formatStoredTime(state.LastPurchaseDate),
			fieldFirstPurchaseDate: formatStoredTime(state.FirstPurchaseDate),
			fieldExpirationDate:    formatStoredTime(state.ExpirationDate),
			fieldStatusMessage:     state.StatusMessage,
			fieldUpdatedAt:         formatStoredTime(state.UpdatedAt),
		})
		return nil
	})
	return err
}

func formatStoredTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
