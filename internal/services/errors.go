package services

import (
	"context"
	"errors"
	"fmt"

	"subscription-sync/internal/models"
)

var (
	// ErrPurchaseCancelled marks a user cancellation. It is an outcome, not a failure.
	ErrPurchaseCancelled = errors.New("purchase cancelled")
	// ErrPurchaseFailed is wrapped by every *PurchaseError.
	ErrPurchaseFailed            = errors.New("purchase failed")
	ErrReceiptVerificationFailed = errors.New("receipt verification failed")
	ErrReceiptItemNotFound       = errors.New("receipt item not found")
	// ErrRemoteNotifyFailed is logged by the reconciler and never returned to its callers.
	ErrRemoteNotifyFailed = errors.New("remote notify failed")
	ErrTimeout            = errors.New("timed out waiting for receipt verification")
	ErrRestoreFailed      = errors.New("restore failed")
	ErrNoProductIDs       = errors.New("no product ids to verify")
)

// PurchaseError is a platform purchase failure carrying the StoreKit error code.
type PurchaseError struct {
	Code    models.PurchaseErrorCode
	Message string
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("purchase failed (code %d): %s", e.Code, e.Message)
}

func (e *PurchaseError) Unwrap() error {
	return ErrPurchaseFailed
}

var purchaseErrorMessages = map[models.PurchaseErrorCode]string{
	models.ErrCodeUnknown:                             "Unknown error. Please contact support",
	models.ErrCodeClientInvalid:                       "Not allowed to make the payment",
	models.ErrCodePaymentInvalid:                      "The purchase identifier was invalid",
	models.ErrCodePaymentNotAllowed:                   "The device is not allowed to make the payment",
	models.ErrCodeStoreProductNotAvailable:            "The product is not available in the current storefront",
	models.ErrCodeCloudServicePermissionDenied:        "Access to cloud service information is not allowed",
	models.ErrCodeCloudServiceNetworkConnectionFailed: "Could not connect to the network",
	models.ErrCodeCloudServiceRevoked:                 "User has revoked permission to use this cloud service",
}

// PurchaseErrorMessage maps a platform error code to its user-facing text.
// Codes outside the known set fall back to the platform's own description.
func PurchaseErrorMessage(code models.PurchaseErrorCode, platformMessage string) string {
	if msg, ok := purchaseErrorMessages[code]; ok {
		return msg
	}
	if platformMessage != "" {
		return platformMessage
	}
	return fmt.Sprintf("Purchase error: code %d", code)
}

// asTimeout converts a context deadline into ErrTimeout, keeping other errors as they are.
func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
