package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"subscription-sync/internal/database"
	"subscription-sync/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	states  map[string]models.SubscriptionState
	saves   int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]models.SubscriptionState)}
}

func (s *memStore) Load(_ context.Context, userID string) (*models.SubscriptionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, database.ErrStateNotFound
	}
	return &state, nil
}

func (s *memStore) Save(_ context.Context, state *models.SubscriptionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.states[state.UserID] = *state
	return nil
}

type notifyCall struct {
	userID       string
	isSubscribed bool
	storedBefore bool // state was already persisted when the call arrived
}

type fakeNotifier struct {
	mu       sync.Mutex
	store    *memStore
	calls    []notifyCall
	failures int // number of leading calls that fail
	err      error
}

func (n *fakeNotifier) UpdateIsSubscribed(ctx context.Context, userID string, isSubscribed bool) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	call := notifyCall{userID: userID, isSubscribed: isSubscribed}
	if n.store != nil {
		if st, err := n.store.Load(ctx, userID); err == nil {
			call.storedBefore = st.IsSubscribed == isSubscribed
		}
	}
	n.calls = append(n.calls, call)

	if n.err != nil {
		return "", n.err
	}
	if len(n.calls) <= n.failures {
		return "", errors.New("backend unavailable")
	}
	return "ok", nil
}

func (n *fakeNotifier) Calls() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []models.Account
}

func (m *fakeMailer) SendStatusMessage(_ context.Context, account models.Account, _ models.SubscriptionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, account)
	return nil
}

type fakeVerifier struct {
	mu      sync.Mutex
	receipt models.Receipt
	err     error
	block   bool
	calls   int
}

func (v *fakeVerifier) VerifyReceipt(ctx context.Context, _ string) (models.Receipt, error) {
	v.mu.Lock()
	v.calls++
	block, receipt, err := v.block, v.receipt, v.err
	v.mu.Unlock()

	if block {
		<-ctx.Done()
		return models.Receipt{}, ctx.Err()
	}
	return receipt, err
}

func (v *fakeVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func subscriptionItem(productID, transactionID string, purchased, expires time.Time) models.ReceiptItem {
	return models.ReceiptItem{
		ProductID:                  productID,
		TransactionID:              transactionID,
		OriginalTransactionID:      "1000000000000001",
		PurchaseDate:               purchased,
		OriginalPurchaseDate:       purchased.Add(-30 * 24 * time.Hour),
		SubscriptionExpirationDate: timePtr(expires),
	}
}
