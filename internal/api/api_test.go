package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"subscription-sync/internal/database"
	"subscription-sync/internal/models"
	"subscription-sync/internal/response"
	"subscription-sync/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey = "test-key"
	testUserID = "7F6C1C52-2A7E-4B59-9A43-2B7C1F1D8E11"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]models.SubscriptionState
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
	state.UpdatedAt = time.Now()
	s.states[state.UserID] = *state
	return nil
}

type stubVerifier struct {
	receipt models.Receipt
	err     error
}

func (v stubVerifier) VerifyReceipt(context.Context, string) (models.Receipt, error) {
	return v.receipt, v.err
}

func newTestRouter(t *testing.T, verifier services.ReceiptVerifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	products := services.NewProductService("weekly.sub", "monthly.sub",
		services.StaticCatalog{"weekly.sub": "$2.99"}, nil, 0)
	reconciler := services.NewReconciler(&memStore{states: map[string]models.SubscriptionState{}}, nil,
		services.WithPlanNamer(products))
	guard := services.NewTransactionGuard(time.Hour)
	t.Cleanup(guard.Stop)

	h := &Handler{
		Purchases:  services.NewPurchaseService(verifier, services.NewReceiptInterpreter(), reconciler, guard, time.Second),
		Reconciler: reconciler,
		Products:   products,
	}

	r := gin.New()
	SetupRoutes(r, h, testAPIKey)
	return r
}

func activeReceipt() models.Receipt {
	now := time.Now().UTC()
	expires := now.Add(7 * 24 * time.Hour)
	return models.Receipt{Items: []models.ReceiptItem{{
		ProductID:                  "weekly.sub",
		TransactionID:              "2000000000000002",
		PurchaseDate:               now,
		OriginalPurchaseDate:       now,
		SubscriptionExpirationDate: &expires,
	}}}
}

func do(t *testing.T, r *gin.Engine, method, target string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, stubVerifier{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresKey(t *testing.T) {
	r := newTestRouter(t, stubVerifier{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPurchaseThenStatus(t *testing.T) {
	r := newTestRouter(t, stubVerifier{receipt: activeReceipt()})

	w, resp := do(t, r, http.MethodPost, "/api/subscription/purchase", PurchaseRequest{
		UserID:        testUserID,
		Status:        models.PurchaseSuccess,
		ProductID:     "weekly.sub",
		TransactionID: "2000000000000002",
		ReceiptData:   "MIIT...",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "subscribed", data["outcome"])
	assert.Equal(t, true, data["is_subscribed"])
	assert.Equal(t, "WEEKLY SUBSCRIPTION", data["package"])
	assert.Contains(t, resp.Message, "Weekly Package")

	w, resp = do(t, r, http.MethodGet, "/api/subscription/status?user_id="+testUserID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := resp.Data.(map[string]interface{})
	assert.Equal(t, true, status["is_subscribed"])
	assert.Equal(t, true, status["is_active"])
	assert.Equal(t, "weekly.sub", status["last_premium_plan"])
}

func TestPurchaseCancelled(t *testing.T) {
	r := newTestRouter(t, stubVerifier{})

	w, resp := do(t, r, http.MethodPost, "/api/subscription/purchase", PurchaseRequest{
		UserID:    testUserID,
		Status:    models.PurchaseCancelled,
		ProductID: "weekly.sub",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", resp.Data.(map[string]interface{})["outcome"])
}

func TestPurchaseErrorCode(t *testing.T) {
	r := newTestRouter(t, stubVerifier{})

	w, resp := do(t, r, http.MethodPost, "/api/subscription/purchase", PurchaseRequest{
		UserID:    testUserID,
		Status:    models.PurchaseError,
		ProductID: "weekly.sub",
		ErrorCode: models.ErrCodePaymentNotAllowed,
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "The device is not allowed to make the payment", resp.Message)
}

func TestPurchaseRejectsBadUserID(t *testing.T) {
	r := newTestRouter(t, stubVerifier{})

	w, resp := do(t, r, http.MethodPost, "/api/subscription/purchase", PurchaseRequest{
		UserID:      "not-a-uuid",
		Status:      models.PurchaseSuccess,
		ProductID:   "weekly.sub",
		ReceiptData: "MIIT...",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_user_id", resp.Code)
}

func TestVerifyFailure(t *testing.T) {
	r := newTestRouter(t, stubVerifier{err: errors.New("status 21003")})

	w, resp := do(t, r, http.MethodPost, "/api/subscription/verify", VerifySubscriptionRequest{
		UserID:      testUserID,
		ReceiptData: "MIIT...",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "receipt_verification_failed", resp.Code)
}

func TestRestoreOutcomes(t *testing.T) {
	r := newTestRouter(t, stubVerifier{receipt: activeReceipt()})

	w, resp := do(t, r, http.MethodPost, "/api/subscription/restore", RestoreRequest{UserID: testUserID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Nothing to Restore", resp.Message)

	w, resp = do(t, r, http.MethodPost, "/api/subscription/restore", RestoreRequest{
		UserID: testUserID,
		Failed: []models.RestoreFailure{{Message: "network"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "restore_failed", resp.Code)

	w, resp = do(t, r, http.MethodPost, "/api/subscription/restore", RestoreRequest{
		UserID:      testUserID,
		Restored:    []models.RestoredPurchase{{ProductID: "weekly.sub"}},
		ReceiptData: "MIIT...",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "subscribed", resp.Data.(map[string]interface{})["outcome"])
}

func TestStatusWithoutState(t *testing.T) {
	r := newTestRouter(t, stubVerifier{})

	w, resp := do(t, r, http.MethodGet, "/api/subscription/status?user_id="+testUserID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["is_subscribed"])
}

func TestGetProducts(t *testing.T) {
	r := newTestRouter(t, stubVerifier{})

	w, resp := do(t, r, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	prices := data["prices"].(map[string]interface{})
	assert.Equal(t, "$2.99", prices["weekly"])
	assert.Equal(t, "9.99", prices["monthly"])
	assert.Equal(t, "MONTHLY SUBSCRIPTION", data["packages"].(map[string]interface{})["monthly.sub"])
}
