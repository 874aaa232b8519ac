package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier pushes the is-subscribed flag to the app backend over HTTP
type WebhookNotifier struct {
	callbackURL string
	secret      string
	httpClient  *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(callbackURL, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		callbackURL: callbackURL,
		secret:      secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second, // 10 second timeout
		},
	}
}

// WebhookPayload represents the payload sent to App Backend
type WebhookPayload struct {
	Event        string `json:"event"`         // always "subscription.is_subscribed"
	UserID       string `json:"user_id"`       // App Account Token (UUID format)
	IsSubscribed bool   `json:"is_subscribed"` // flag mirrored into the user's profile
	Timestamp    string `json:"timestamp"`     // ISO 8601 format
}

// UpdateIsSubscribed sends a single webhook request. Retries are left to RetryingNotifier.
func (wn *WebhookNotifier) UpdateIsSubscribed(ctx context.Context, userID string, isSubscribed bool) (string, error) {
	if wn.callbackURL == "" {
		// No webhook configured, skip
		return "webhook not configured", nil
	}

	payload := WebhookPayload{
		Event:        "subscription.is_subscribed",
		UserID:       userID,
		IsSubscribed: isSubscribed,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SubscriptionSync-Webhook/1.0")

	// Add signature if secret is provided
	if wn.secret != "" {
		req.Header.Set("X-Subscription-Signature", generateSignature(jsonData, wn.secret))
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &webhookStatusError{StatusCode: resp.StatusCode}
	}

	return fmt.Sprintf("webhook accepted (%d) %s", resp.StatusCode, bytes.TrimSpace(body)), nil
}

type webhookStatusError struct {
	StatusCode int
}

func (e *webhookStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// permanent reports whether retrying cannot help: the backend rejected the request itself.
func (e *webhookStatusError) permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// generateSignature generates HMAC-SHA256 signature for webhook payload
func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
