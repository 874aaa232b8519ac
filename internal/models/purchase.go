package models

// PurchaseStatus is the outcome reported by the platform purchasing service.
type PurchaseStatus string

const (
	PurchaseSuccess   PurchaseStatus = "success"
	PurchaseCancelled PurchaseStatus = "cancelled"
	PurchaseError     PurchaseStatus = "error"
)

// PurchaseErrorCode follows StoreKit's SKError numbering.
type PurchaseErrorCode int

const (
	ErrCodeUnknown                             PurchaseErrorCode = 0
	ErrCodeClientInvalid                       PurchaseErrorCode = 1
	ErrCodePaymentCancelled                    PurchaseErrorCode = 2
	ErrCodePaymentInvalid                      PurchaseErrorCode = 3
	ErrCodePaymentNotAllowed                   PurchaseErrorCode = 4
	ErrCodeStoreProductNotAvailable            PurchaseErrorCode = 5
	ErrCodeCloudServicePermissionDenied        PurchaseErrorCode = 6
	ErrCodeCloudServiceNetworkConnectionFailed PurchaseErrorCode = 7
	ErrCodeCloudServiceRevoked                 PurchaseErrorCode = 8
)

// PurchaseResult is one purchase callback from the platform.
type PurchaseResult struct {
	Status        PurchaseStatus    `json:"status"`
	ProductID     string            `json:"product_id"`
	TransactionID string            `json:"transaction_id,omitempty"`
	ErrorCode     PurchaseErrorCode `json:"error_code,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"` // platform localized description
}

// RestoredPurchase is a purchase the platform handed back during restore.
type RestoredPurchase struct {
	ProductID     string `json:"product_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// RestoreFailure is a purchase the platform failed to restore.
type RestoreFailure struct {
	ProductID string `json:"product_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RestoreResult is the restore callback from the platform.
type RestoreResult struct {
	Restored []RestoredPurchase `json:"restored"`
	Failed   []RestoreFailure   `json:"failed"`
}

// Product is the storefront information for one product.
type Product struct {
	ProductID      string `json:"product_id"`
	LocalizedPrice string `json:"localized_price"`
}

// SubscriptionPrices are the display prices of the two offered plans.
type SubscriptionPrices struct {
	Weekly  string `json:"weekly"`
	Monthly string `json:"monthly"`
}

// Account identifies the app user a reconciliation runs for.
type Account struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"` // optional, enables status emails
}
