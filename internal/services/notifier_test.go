package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierSendsSignedPayload(t *testing.T) {
	var (
		gotBody      []byte
		gotSignature string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Subscription-Signature")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(srv.URL, "s3cret")
	msg, err := wn.UpdateIsSubscribed(context.Background(), testUserID, true)
	require.NoError(t, err)
	assert.Equal(t, "webhook accepted (200) done", msg)

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "subscription.is_subscribed", payload.Event)
	assert.Equal(t, testUserID, payload.UserID)
	assert.True(t, payload.IsSubscribed)
	assert.Equal(t, generateSignature(gotBody, "s3cret"), gotSignature)
}

func TestWebhookNotifierNotConfigured(t *testing.T) {
	msg, err := NewWebhookNotifier("", "").UpdateIsSubscribed(context.Background(), testUserID, false)
	require.NoError(t, err)
	assert.Equal(t, "webhook not configured", msg)
}

func TestWebhookNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWebhookNotifier(srv.URL, "").UpdateIsSubscribed(context.Background(), testUserID, true)
	var statusErr *webhookStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.False(t, statusErr.permanent())
}

func TestWebhookStatusErrorPermanent(t *testing.T) {
	assert.True(t, (&webhookStatusError{StatusCode: http.StatusBadRequest}).permanent())
	assert.True(t, (&webhookStatusError{StatusCode: http.StatusNotFound}).permanent())
	assert.False(t, (&webhookStatusError{StatusCode: http.StatusTooManyRequests}).permanent())
	assert.False(t, (&webhookStatusError{StatusCode: http.StatusRequestTimeout}).permanent())
	assert.False(t, (&webhookStatusError{StatusCode: http.StatusServiceUnavailable}).permanent())
}

func TestRetryingNotifierRecovers(t *testing.T) {
	next := &fakeNotifier{failures: 2}
	rn := NewRetryingNotifier(next, 3, time.Millisecond)

	msg, err := rn.UpdateIsSubscribed(context.Background(), testUserID, true)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg)
	assert.Len(t, next.Calls(), 3)
}

func TestRetryingNotifierGivesUp(t *testing.T) {
	next := &fakeNotifier{failures: 100}
	rn := NewRetryingNotifier(next, 2, time.Millisecond)

	_, err := rn.UpdateIsSubscribed(context.Background(), testUserID, true)
	require.Error(t, err)
	assert.Len(t, next.Calls(), 3)
}

func TestRetryingNotifierStopsOnPermanentStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	rn := NewRetryingNotifier(NewWebhookNotifier(srv.URL, ""), 5, time.Millisecond)
	_, err := rn.UpdateIsSubscribed(context.Background(), testUserID, false)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRetryingNotifierRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rn := NewRetryingNotifier(NewWebhookNotifier(srv.URL, ""), 3, time.Millisecond)
	_, err := rn.UpdateIsSubscribed(context.Background(), testUserID, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestProfilePath(t *testing.T) {
	path, err := profilePath("/users/", testUserID)
	require.NoError(t, err)
	assert.Equal(t, "users/"+testUserID, path)

	path, err = profilePath("", testUserID)
	require.NoError(t, err)
	assert.Equal(t, testUserID, path)

	for _, bad := range []string{"", "a.b", "a/b", "a#b", "a$b", "a[0]"} {
		_, err := profilePath("users", bad)
		assert.Error(t, err, bad)
	}
}
