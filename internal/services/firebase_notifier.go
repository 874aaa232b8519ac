package services

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/db"
	"google.golang.org/api/option"
)

// FirebaseNotifier writes the is-subscribed flag into the user's Realtime Database profile.
type FirebaseNotifier struct {
	client    *db.Client
	usersPath string
}

// NewFirebaseNotifier connects to the Realtime Database at databaseURL.
// An empty credentialsFile falls back to application default credentials.
func NewFirebaseNotifier(ctx context.Context, databaseURL, credentialsFile, usersPath string) (*FirebaseNotifier, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("FIREBASE_DATABASE_URL is empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database client: %w", err)
	}

	return &FirebaseNotifier{client: client, usersPath: usersPath}, nil
}

// UpdateIsSubscribed sets <usersPath>/<userID>/isSubscribed
func (f *FirebaseNotifier) UpdateIsSubscribed(ctx context.Context, userID string, isSubscribed bool) (string, error) {
	path, err := profilePath(f.usersPath, userID)
	if err != nil {
		return "", err
	}

	if err := f.client.NewRef(path).Update(ctx, map[string]interface{}{
		"isSubscribed": isSubscribed,
	}); err != nil {
		return "", fmt.Errorf("firebase update %s: %w", path, err)
	}
	return fmt.Sprintf("isSubscribed updated to %v", isSubscribed), nil
}

// profilePath builds the profile node path. Realtime Database keys may not contain . $ # [ ] /
func profilePath(usersPath, userID string) (string, error) {
	if userID == "" || strings.ContainsAny(userID, ".$#[]/") {
		return "", fmt.Errorf("invalid user id for firebase path: %q", userID)
	}
	base := strings.Trim(usersPath, "/")
	if base == "" {
		return userID, nil
	}
	return base + "/" + userID, nil
}
