package services

import (
	"sort"
	"time"

	"subscription-sync/internal/models"
	"subscription-sync/pkg/logging"
)

// ReceiptInterpreter classifies auto-renewable subscriptions in a verified receipt.
// It has no side effects besides logging.
type ReceiptInterpreter struct{}

// NewReceiptInterpreter creates a new receipt interpreter
func NewReceiptInterpreter() *ReceiptInterpreter {
	return &ReceiptInterpreter{}
}

// Classify classifies the subscription state of a single product.
func (ri *ReceiptInterpreter) Classify(receipt models.Receipt, productID string, now time.Time) models.Classification {
	return ri.ClassifySet(receipt, []string{productID}, now)
}

// ClassifySet classifies a subscription group: the most recent item across productIDs decides.
//
// Cancelled items and items without an expiration date are ignored. The remaining
// items are ordered by expiration date, most recent first, so Items[0] is the
// authoritative one. When the receipt's own order disagrees, a warning is logged.
// The reference time is the receipt's request date when present, otherwise now.
func (ri *ReceiptInterpreter) ClassifySet(receipt models.Receipt, productIDs []string, now time.Time) models.Classification {
	wanted := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = struct{}{}
	}

	var items []models.ReceiptItem
	for _, item := range receipt.Items {
		if _, ok := wanted[item.ProductID]; !ok {
			continue
		}
		if item.CancellationDate != nil {
			logging.Debugf("Skipping cancelled receipt item - product: %s, transaction: %s", item.ProductID, item.TransactionID)
			continue
		}
		if item.SubscriptionExpirationDate == nil {
			logging.Warnf("Receipt item without expiration date - product: %s, transaction: %s", item.ProductID, item.TransactionID)
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return models.Classification{Kind: models.NeverPurchased}
	}

	mostRecentFirst := func(i, j int) bool {
		return items[i].SubscriptionExpirationDate.After(*items[j].SubscriptionExpirationDate)
	}
	if !sort.SliceIsSorted(items, mostRecentFirst) {
		upstreamFirst := items[0]
		sort.SliceStable(items, mostRecentFirst)
		logging.Warnf("Receipt items were not ordered by expiration - upstream first: %s (expires %s), most recent: %s (expires %s)",
			upstreamFirst.TransactionID, upstreamFirst.SubscriptionExpirationDate.Format(time.RFC3339),
			items[0].TransactionID, items[0].SubscriptionExpirationDate.Format(time.RFC3339))
	}

	reference := now
	if !receipt.RequestDate.IsZero() {
		reference = receipt.RequestDate
	}

	expiry := *items[0].SubscriptionExpirationDate
	kind := models.Expired
	if expiry.After(reference) {
		kind = models.Purchased
	}

	return models.Classification{
		Kind:       kind,
		ExpiryDate: expiry,
		Items:      items,
	}
}

// Representative returns the authoritative item of a Purchased or Expired classification.
func Representative(c models.Classification) (models.ReceiptItem, error) {
	if len(c.Items) == 0 {
		return models.ReceiptItem{}, ErrReceiptItemNotFound
	}
	return c.Items[0], nil
}
