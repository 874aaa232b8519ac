package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subscription-sync/internal/models"
	"subscription-sync/pkg/logging"
)

// OutcomeKind names the result of a purchase, restore or verify request.
type OutcomeKind string

const (
	OutcomeSubscribed       OutcomeKind = "subscribed"
	OutcomeExpired          OutcomeKind = "expired"
	OutcomeNeverPurchased   OutcomeKind = "never_purchased"
	OutcomeCancelled        OutcomeKind = "cancelled"
	OutcomeNothingToRestore OutcomeKind = "nothing_to_restore"
	OutcomeDuplicate        OutcomeKind = "duplicate"
)

// Outcome is what the orchestrator reports back to the app.
// State is set whenever the request wrote subscription state.
type Outcome struct {
	Kind    OutcomeKind               `json:"kind"`
	Message string                    `json:"message"`
	State   *models.SubscriptionState `json:"state,omitempty"`
	Expiry  *time.Time                `json:"expiry,omitempty"`
	Source  models.ClassificationKind `json:"-"`
}

// PurchaseService drives purchase and restore callbacks through
// verification, classification and reconciliation.
type PurchaseService struct {
	verifier      ReceiptVerifier
	interpreter   *ReceiptInterpreter
	reconciler    *Reconciler
	dedup         TransactionDeduper
	verifyTimeout time.Duration
	now           func() time.Time
}

// NewPurchaseService creates the orchestrator. dedup may be nil.
func NewPurchaseService(verifier ReceiptVerifier, interpreter *ReceiptInterpreter, reconciler *Reconciler, dedup TransactionDeduper, verifyTimeout time.Duration) *PurchaseService {
	if verifyTimeout <= 0 {
		verifyTimeout = 20 * time.Second
	}
	return &PurchaseService{
		verifier:      verifier,
		interpreter:   interpreter,
		reconciler:    reconciler,
		dedup:         dedup,
		verifyTimeout: verifyTimeout,
		now:           time.Now,
	}
}

// HandlePurchase processes one purchase callback.
// A cancelled purchase is a silent outcome; a platform error returns *PurchaseError.
func (s *PurchaseService) HandlePurchase(ctx context.Context, account models.Account, result models.PurchaseResult, receiptData string) (*Outcome, error) {
	switch result.Status {
	case models.PurchaseCancelled:
		return s.cancelled(account, result), nil

	case models.PurchaseError:
		if result.ErrorCode == models.ErrCodePaymentCancelled {
			return s.cancelled(account, result), nil
		}
		msg := PurchaseErrorMessage(result.ErrorCode, result.ErrorMessage)
		logging.Errorf("Purchase failed - user: %s, product: %s, code: %d, message: %s",
			account.UserID, result.ProductID, result.ErrorCode, msg)
		return nil, &PurchaseError{Code: result.ErrorCode, Message: msg}

	case models.PurchaseSuccess:
		logging.Infof("Purchase Success: %s - user: %s, transaction: %s", result.ProductID, account.UserID, result.TransactionID)

		if s.dedup != nil && result.TransactionID != "" {
			seen, err := s.dedup.Seen(ctx, result.TransactionID)
			if err != nil {
				logging.Warnf("Transaction dedup unavailable - transaction: %s, error: %v", result.TransactionID, err)
			} else if seen {
				return s.duplicate(ctx, account), nil
			}
		}

		outcome, err := s.verify(ctx, account, []string{result.ProductID}, receiptData)
		if err != nil {
			s.forget(result.TransactionID)
			return nil, err
		}
		return outcome, nil

	default:
		return nil, fmt.Errorf("%w: unknown purchase status %q", ErrPurchaseFailed, result.Status)
	}
}

// Restore processes a restore callback. Any failed item fails the whole restore.
// All restored products are verified together so the most recent one wins.
func (s *PurchaseService) Restore(ctx context.Context, account models.Account, result models.RestoreResult, receiptData string) (*Outcome, error) {
	if len(result.Failed) > 0 {
		logging.Errorf("Restore Failed - user: %s, failures: %+v", account.UserID, result.Failed)
		return nil, fmt.Errorf("%w: %d purchases could not be restored", ErrRestoreFailed, len(result.Failed))
	}

	if len(result.Restored) == 0 {
		logging.Infof("Nothing to Restore - user: %s", account.UserID)
		return &Outcome{Kind: OutcomeNothingToRestore, Message: "Nothing to Restore"}, nil
	}

	productIDs := make([]string, 0, len(result.Restored))
	seen := make(map[string]bool, len(result.Restored))
	for _, p := range result.Restored {
		if p.ProductID == "" || seen[p.ProductID] {
			continue
		}
		seen[p.ProductID] = true
		productIDs = append(productIDs, p.ProductID)
	}
	if len(productIDs) == 0 {
		logging.Warnf("Nothing to Restore - user: %s, %d restored purchases carry no product id", account.UserID, len(result.Restored))
		return &Outcome{Kind: OutcomeNothingToRestore, Message: "Nothing to Restore"}, nil
	}
	logging.Infof("Restore Success - user: %s, products: %v", account.UserID, productIDs)

	return s.verify(ctx, account, productIDs, receiptData)
}

// VerifySubscriptions re-verifies the receipt for productIDs, e.g. on app launch.
func (s *PurchaseService) VerifySubscriptions(ctx context.Context, account models.Account, productIDs []string, receiptData string) (*Outcome, error) {
	if len(productIDs) == 0 {
		return nil, ErrNoProductIDs
	}
	return s.verify(ctx, account, productIDs, receiptData)
}

func (s *PurchaseService) verify(ctx context.Context, account models.Account, productIDs []string, receiptData string) (*Outcome, error) {
	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	receipt, err := s.verifier.VerifyReceipt(vctx, receiptData)
	if err != nil {
		if !errors.Is(err, ErrTimeout) {
			err = asTimeout(err)
		}
		if !errors.Is(err, ErrReceiptVerificationFailed) {
			err = fmt.Errorf("%w: %w", ErrReceiptVerificationFailed, err)
		}
		logging.Errorf("Receipt verification failed - user: %s, error: %v", account.UserID, err)
		return nil, err
	}

	c := s.interpreter.ClassifySet(receipt, productIDs, s.now())

	state, err := s.reconciler.Reconcile(ctx, account, c)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{State: state, Source: c.Kind}
	if !c.ExpiryDate.IsZero() {
		expiry := c.ExpiryDate
		outcome.Expiry = &expiry
	}

	switch c.Kind {
	case models.Purchased:
		outcome.Kind = OutcomeSubscribed
		outcome.Message = state.StatusMessage
	case models.Expired:
		outcome.Kind = OutcomeExpired
		outcome.Message = state.StatusMessage
	default:
		outcome.Kind = OutcomeNeverPurchased
		outcome.Message = "This product has never been purchased"
	}
	return outcome, nil
}

func (s *PurchaseService) cancelled(account models.Account, result models.PurchaseResult) *Outcome {
	logging.Debugf("%v - user: %s, product: %s", ErrPurchaseCancelled, account.UserID, result.ProductID)
	return &Outcome{Kind: OutcomeCancelled}
}

// duplicate answers a repeated callback with the state the first one produced.
func (s *PurchaseService) duplicate(ctx context.Context, account models.Account) *Outcome {
	outcome := &Outcome{Kind: OutcomeDuplicate, Message: "Purchase already processed"}
	if state, err := s.reconciler.State(ctx, account.UserID); err == nil {
		outcome.State = &state
	}
	return outcome
}

func (s *PurchaseService) forget(transactionID string) {
	if s.dedup == nil || transactionID == "" {
		return
	}
	if err := s.dedup.Forget(context.Background(), transactionID); err != nil {
		logging.Warnf("Failed to release transaction %s: %v", transactionID, err)
	}
}
