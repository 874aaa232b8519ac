package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"subscription-sync/internal/models"
	"subscription-sync/pkg/logging"

	"github.com/awa/go-iap/appstore"
)

// ReceiptVerifier validates receipt data with the platform and returns its items.
type ReceiptVerifier interface {
	VerifyReceipt(ctx context.Context, receiptData string) (models.Receipt, error)
}

// AppStoreVerifier verifies receipts against Apple's verifyReceipt endpoint.
// Production receipts are tried first; go-iap falls back to sandbox on status 21007.
type AppStoreVerifier struct {
	client       *appstore.Client
	sharedSecret string
}

// NewAppStoreVerifier creates a verifier. sandbox forces the sandbox endpoint.
func NewAppStoreVerifier(sharedSecret string, sandbox bool) *AppStoreVerifier {
	client := appstore.NewWithClient(&http.Client{Timeout: 30 * time.Second})
	if sandbox {
		client.ProductionURL = appstore.SandboxURL
	}
	return &AppStoreVerifier{
		client:       client,
		sharedSecret: sharedSecret,
	}
}

// VerifyReceipt verifies receiptData and converts the response.
func (v *AppStoreVerifier) VerifyReceipt(ctx context.Context, receiptData string) (models.Receipt, error) {
	if receiptData == "" {
		return models.Receipt{}, fmt.Errorf("%w: empty receipt data", ErrReceiptVerificationFailed)
	}

	req := appstore.IAPRequest{
		ReceiptData: receiptData,
		Password:    v.sharedSecret,
	}
	resp := &appstore.IAPResponse{}

	if err := v.client.Verify(ctx, req, resp); err != nil {
		return models.Receipt{}, fmt.Errorf("%w: %w", ErrReceiptVerificationFailed, asTimeout(err))
	}
	if err := appstore.HandleError(resp.Status); err != nil {
		logging.Errorf("App Store rejected receipt - status: %d, error: %v", resp.Status, err)
		return models.Receipt{}, fmt.Errorf("%w: status %d: %v", ErrReceiptVerificationFailed, resp.Status, err)
	}

	return receiptFromResponse(resp), nil
}

// receiptFromResponse prefers latest_receipt_info, which carries every renewal,
// over the in_app array of the submitted receipt.
func receiptFromResponse(resp *appstore.IAPResponse) models.Receipt {
	source := resp.LatestReceiptInfo
	if len(source) == 0 {
		source = resp.Receipt.InApp
	}

	receipt := models.Receipt{
		BundleID:    resp.Receipt.BundleID,
		Environment: string(resp.Environment),
		RequestDate: msToTime(resp.Receipt.RequestDateMS),
		Items:       make([]models.ReceiptItem, 0, len(source)),
	}

	for _, inApp := range source {
		item := models.ReceiptItem{
			ProductID:             inApp.ProductID,
			TransactionID:         string(inApp.TransactionID),
			OriginalTransactionID: string(inApp.OriginalTransactionID),
			PurchaseDate:          msToTime(inApp.PurchaseDateMS),
			OriginalPurchaseDate:  msToTime(inApp.OriginalPurchaseDateMS),
			IsTrialPeriod:         inApp.IsTrialPeriod == "true",
			IsInIntroOfferPeriod:  inApp.IsInIntroOfferPeriod == "true",
		}
		if t := msToTime(inApp.ExpiresDateMS); !t.IsZero() {
			item.SubscriptionExpirationDate = &t
		}
		if t := msToTime(inApp.CancellationDateMS); !t.IsZero() {
			item.CancellationDate = &t
		}
		receipt.Items = append(receipt.Items, item)
	}

	return receipt
}

// msToTime parses Apple's millisecond timestamps; empty or malformed values give the zero time.
func msToTime(ms string) time.Time {
	if ms == "" {
		return time.Time{}
	}
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		logging.Warnf("Invalid App Store timestamp: %q", ms)
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
