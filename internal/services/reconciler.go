package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"subscription-sync/internal/database"
	"subscription-sync/internal/models"
	"subscription-sync/pkg/logging"
)

// StateStore persists SubscriptionState. Save must write all fields or none.
type StateStore interface {
	Load(ctx context.Context, userID string) (*models.SubscriptionState, error)
	Save(ctx context.Context, state *models.SubscriptionState) error
}

// RemoteNotifier forwards the is-subscribed flag to the remote profile store.
// The returned message is informational and only logged.
type RemoteNotifier interface {
	UpdateIsSubscribed(ctx context.Context, userID string, isSubscribed bool) (string, error)
}

// StatusMailer delivers the composed status message to the user.
type StatusMailer interface {
	SendStatusMessage(ctx context.Context, account models.Account, state models.SubscriptionState) error
}

// PlanNamer turns a product id into the plan name used in status messages.
type PlanNamer interface {
	PlanName(productID string) string
}

const statusDateLayout = "Jan 2, 2006 at 3:04 PM MST"

const activeMessageTemplate = "Thank you for subscribing to %s Package. Your subscription started on %s and is currently active. " +
	"Your next billing date is %s, at which point your subscription will automatically renew. " +
	"If you have any questions or concerns about your subscription, please don't hesitate to contact our support team. " +
	"Thank you for being a valued subscriber!"

const expiredMessageTemplate = "We wanted to let you know that your subscription to %s Version has expired on %s. " +
	"If you enjoyed the service and would like to continue, you can renew your subscription at any time. " +
	"If you choose not to renew, your access to the service will be limited. " +
	"We hope you enjoyed your time with us and appreciate your support. " +
	"If you have any questions or concerns, please don't hesitate to contact our support team. " +
	"Thank you for being a valued subscriber."

// ErrMissingExpiration is returned when an item handed to the reconciler has no expiration date.
var ErrMissingExpiration = errors.New("receipt item has no subscription expiration date")

// Reconciler owns the persisted subscription state.
//
// Every write goes through one mutex. The local write completes before the
// remote profile store is told about it, and remote failures never reach the caller.
// Remote notifications of one user are sent one at a time in write order, so the
// remote flag ends on the latest local state.
type Reconciler struct {
	store         StateStore
	notifier      RemoteNotifier
	mailer        StatusMailer
	plans         PlanNamer
	notifyTimeout time.Duration

	mu      sync.Mutex
	pending sync.WaitGroup

	// per-user remote sync ordering
	syncMu sync.Mutex
	syncs  map[string]*userSync
}

// userSync orders the remote notifications of one user. Only the notification
// for the latest persisted state is sent; an older one still retrying is cancelled.
type userSync struct {
	send   sync.Mutex
	latest uint64
	cancel context.CancelFunc
}

// notifyTicket identifies one remote notification in its user's sequence.
type notifyTicket struct {
	us  *userSync
	seq uint64
	ctx context.Context
}

// ReconcilerOption configures optional collaborators
type ReconcilerOption func(*Reconciler)

// WithStatusMailer emails status messages to accounts that carry an address
func WithStatusMailer(m StatusMailer) ReconcilerOption {
	return func(r *Reconciler) { r.mailer = m }
}

// WithPlanNamer sets the plan names used in status messages
func WithPlanNamer(p PlanNamer) ReconcilerOption {
	return func(r *Reconciler) { r.plans = p }
}

// WithNotifyTimeout bounds each background remote notification, retries included
func WithNotifyTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.notifyTimeout = d }
}

// NewReconciler creates a reconciler. notifier may be nil to disable remote sync.
func NewReconciler(store StateStore, notifier RemoteNotifier, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:         store,
		notifier:      notifier,
		notifyTimeout: 2 * time.Minute,
		syncs:         make(map[string]*userSync),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies a classification to the account's state.
// It returns nil state for NeverPurchased, which leaves the persisted state untouched.
func (r *Reconciler) Reconcile(ctx context.Context, account models.Account, c models.Classification) (*models.SubscriptionState, error) {
	switch c.Kind {
	case models.Purchased, models.Expired:
		item, err := Representative(c)
		if err != nil {
			logging.Errorf("Receipt Not Found - user: %s, classification: %s", account.UserID, c.Kind)
			return nil, err
		}
		if c.Kind == models.Purchased {
			logging.Infof("Product is valid until %s - user: %s, trial: %v", c.ExpiryDate.Format(time.RFC3339), account.UserID, item.IsTrialPeriod)
			return r.OnActive(ctx, account, item)
		}
		logging.Infof("Product is expired since %s - user: %s", c.ExpiryDate.Format(time.RFC3339), account.UserID)
		return r.OnExpired(ctx, account, item)
	default:
		r.OnNeverPurchased(account)
		return nil, nil
	}
}

// OnActive records an active subscription and tells the remote store the user is subscribed.
func (r *Reconciler) OnActive(ctx context.Context, account models.Account, item models.ReceiptItem) (*models.SubscriptionState, error) {
	if item.SubscriptionExpirationDate == nil {
		return nil, ErrMissingExpiration
	}
	expiry := *item.SubscriptionExpirationDate

	state := &models.SubscriptionState{
		UserID:            account.UserID,
		IsSubscribed:      true,
		ProductID:         item.ProductID,
		LastPremiumPlan:   item.ProductID,
		LastPurchaseDate:  item.PurchaseDate,
		FirstPurchaseDate: item.OriginalPurchaseDate,
		ExpirationDate:    expiry,
		StatusMessage: fmt.Sprintf(activeMessageTemplate,
			r.planName(item.ProductID), formatStatusDate(item.PurchaseDate), formatStatusDate(expiry)),
	}

	ticket, err := r.persist(ctx, state)
	if err != nil {
		return nil, err
	}
	r.afterPersist(account, *state, ticket)
	return state, nil
}

// OnExpired records an expired subscription and tells the remote store the user is not subscribed.
func (r *Reconciler) OnExpired(ctx context.Context, account models.Account, item models.ReceiptItem) (*models.SubscriptionState, error) {
	if item.SubscriptionExpirationDate == nil {
		return nil, ErrMissingExpiration
	}
	expiry := *item.SubscriptionExpirationDate

	state := &models.SubscriptionState{
		UserID:            account.UserID,
		IsSubscribed:      false,
		ProductID:         item.ProductID,
		LastPurchaseDate:  item.PurchaseDate,
		FirstPurchaseDate: item.OriginalPurchaseDate,
		ExpirationDate:    expiry,
		StatusMessage:     fmt.Sprintf(expiredMessageTemplate, r.planName(item.ProductID), formatStatusDate(expiry)),
	}

	ticket, err := r.persist(ctx, state)
	if err != nil {
		return nil, err
	}
	r.afterPersist(account, *state, ticket)
	return state, nil
}

// OnNeverPurchased only logs; nothing is persisted or sent.
func (r *Reconciler) OnNeverPurchased(account models.Account) {
	logging.Infof("This product has never been purchased - user: %s", account.UserID)
}

// State returns a copy of the persisted state of userID.
func (r *Reconciler) State(ctx context.Context, userID string) (models.SubscriptionState, error) {
	state, err := r.store.Load(ctx, userID)
	if err != nil {
		return models.SubscriptionState{}, err
	}
	return *state, nil
}

// IsSubscribed reports the persisted flag; a user without state is not subscribed.
func (r *Reconciler) IsSubscribed(ctx context.Context, userID string) (bool, error) {
	state, err := r.store.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrStateNotFound) {
			return false, nil
		}
		return false, err
	}
	return state.IsSubscribed, nil
}

// Wait blocks until background notifications started so far have finished.
func (r *Reconciler) Wait() {
	r.pending.Wait()
}

func (r *Reconciler) persist(ctx context.Context, state *models.SubscriptionState) (notifyTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The last premium plan outlives expiry cycles
	if state.LastPremiumPlan == "" {
		prev, err := r.store.Load(ctx, state.UserID)
		switch {
		case err == nil:
			state.LastPremiumPlan = prev.LastPremiumPlan
		case !errors.Is(err, database.ErrStateNotFound):
			return notifyTicket{}, fmt.Errorf("failed to load subscription state: %w", err)
		}
	}

	if err := r.store.Save(ctx, state); err != nil {
		logging.Errorf("Failed to save subscription state - user: %s, error: %v", state.UserID, err)
		return notifyTicket{}, fmt.Errorf("failed to save subscription state: %w", err)
	}

	logging.Infof("Subscription state saved - user: %s, subscribed: %v, product: %s, expires: %s",
		state.UserID, state.IsSubscribed, state.ProductID, state.ExpirationDate.Format(time.RFC3339))

	// Sequenced under r.mu so remote order follows local write order
	return r.nextNotify(state.UserID), nil
}

// nextNotify registers a new latest notification for userID and cancels the previous one.
func (r *Reconciler) nextNotify(userID string) notifyTicket {
	if r.notifier == nil {
		return notifyTicket{}
	}

	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	us, ok := r.syncs[userID]
	if !ok {
		us = &userSync{}
		r.syncs[userID] = us
	}
	if us.cancel != nil {
		us.cancel()
	}
	us.latest++

	ctx, cancel := context.WithCancel(context.Background())
	us.cancel = cancel
	return notifyTicket{us: us, seq: us.latest, ctx: ctx}
}

func (r *Reconciler) isLatest(t notifyTicket) bool {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()
	return t.us.latest == t.seq
}

// finishNotify drops the user's entry once its latest notification is done.
func (r *Reconciler) finishNotify(userID string, t notifyTicket) {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()
	if t.us.latest == t.seq {
		t.us.cancel()
		if r.syncs[userID] == t.us {
			delete(r.syncs, userID)
		}
	}
}

// notifyRemote sends one notification, holding the user's send lock so
// notifications never overlap and an outdated one is skipped.
func (r *Reconciler) notifyRemote(userID string, isSubscribed bool, t notifyTicket) {
	t.us.send.Lock()
	defer t.us.send.Unlock()
	defer r.finishNotify(userID, t)

	if !r.isLatest(t) {
		logging.Debugf("Skipping outdated remote notify - user: %s, is_subscribed: %v", userID, isSubscribed)
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, r.notifyTimeout)
	defer cancel()

	msg, err := r.notifier.UpdateIsSubscribed(ctx, userID, isSubscribed)
	if err != nil {
		if !r.isLatest(t) {
			logging.Debugf("Remote notify superseded by a newer state - user: %s, is_subscribed: %v", userID, isSubscribed)
			return
		}
		logging.Errorf("%v - user: %s, is_subscribed: %v, error: %v", ErrRemoteNotifyFailed, userID, isSubscribed, err)
		return
	}
	logging.Infof("Remote profile updated - user: %s, is_subscribed: %v, message: %s", userID, isSubscribed, msg)
}

// afterPersist starts the best-effort side effects of a saved state.
func (r *Reconciler) afterPersist(account models.Account, state models.SubscriptionState, ticket notifyTicket) {
	if r.notifier != nil && ticket.us != nil {
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			r.notifyRemote(account.UserID, state.IsSubscribed, ticket)
		}()
	}

	if r.mailer != nil && account.Email != "" {
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), r.notifyTimeout)
			defer cancel()

			if err := r.mailer.SendStatusMessage(ctx, account, state); err != nil {
				logging.Errorf("Failed to email status message - user: %s, error: %v", account.UserID, err)
			}
		}()
	}
}

func (r *Reconciler) planName(productID string) string {
	if r.plans != nil {
		if name := r.plans.PlanName(productID); name != "" {
			return name
		}
	}
	return "Premium"
}

func formatStatusDate(t time.Time) string {
	return t.UTC().Format(statusDateLayout)
}
