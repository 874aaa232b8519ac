package models

import (
	"time"
)

// SubscriptionState is the persisted subscription snapshot for one app user.
// It is written only by the reconciler; everything else reads copies of it.
type SubscriptionState struct {
	BaseModel

	UserID string `json:"user_id" gorm:"not null;size:64;uniqueIndex"` // app account token (UUID)

	IsSubscribed    bool   `json:"is_subscribed" gorm:"not null;default:false"`
	ProductID       string `json:"product_id" gorm:"size:100"`
	LastPremiumPlan string `json:"last_premium_plan" gorm:"size:100"` // only written on an active subscription

	LastPurchaseDate  time.Time `json:"last_purchase_date"`
	FirstPurchaseDate time.Time `json:"first_purchase_date"`
	ExpirationDate    time.Time `json:"expiration_date" gorm:"index"`

	StatusMessage string `json:"status_message" gorm:"type:text"`
}

// IsActive reports whether the snapshot says subscribed and the period has not run out at now.
func (s SubscriptionState) IsActive(now time.Time) bool {
	return s.IsSubscribed && s.ExpirationDate.After(now)
}

// SameContent compares the persisted fields, ignoring bookkeeping columns.
func (s SubscriptionState) SameContent(o SubscriptionState) bool {
	return s.UserID == o.UserID &&
		s.IsSubscribed == o.IsSubscribed &&
		s.ProductID == o.ProductID &&
		s.LastPremiumPlan == o.LastPremiumPlan &&
		s.LastPurchaseDate.Equal(o.LastPurchaseDate) &&
		s.FirstPurchaseDate.Equal(o.FirstPurchaseDate) &&
		s.ExpirationDate.Equal(o.ExpirationDate) &&
		s.StatusMessage == o.StatusMessage
}
