package models

import (
	"time"
)

// ReceiptItem is one transaction record of a verified receipt, scoped to a single product.
type ReceiptItem struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`

	PurchaseDate         time.Time `json:"purchase_date"`
	OriginalPurchaseDate time.Time `json:"original_purchase_date"`

	// Present for auto-renewable items. A missing value is an upstream defect.
	SubscriptionExpirationDate *time.Time `json:"subscription_expiration_date,omitempty"`
	CancellationDate           *time.Time `json:"cancellation_date,omitempty"`

	IsTrialPeriod        bool `json:"is_trial_period"`
	IsInIntroOfferPeriod bool `json:"is_in_intro_offer_period"`
}

// Receipt is a receipt already verified by an external validator.
type Receipt struct {
	BundleID    string        `json:"bundle_id"`
	Environment string        `json:"environment"`  // Sandbox or Production
	RequestDate time.Time     `json:"request_date"` // zero when the validator did not report one
	Items       []ReceiptItem `json:"items"`
}

// ClassificationKind tags a Classification.
type ClassificationKind int

const (
	NeverPurchased ClassificationKind = iota
	Purchased
	Expired
)

func (k ClassificationKind) String() string {
	switch k {
	case Purchased:
		return "purchased"
	case Expired:
		return "expired"
	default:
		return "never_purchased"
	}
}

// Classification is the outcome of interpreting a receipt for a product (or product set).
// Items are ordered most recent first.
type Classification struct {
	Kind       ClassificationKind
	ExpiryDate time.Time
	Items      []ReceiptItem
}
