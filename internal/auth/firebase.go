package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/worldbeesion/beecareful-backend/config"
)

// InitializeFirebase initializes the Firebase Admin SDK and returns the Auth
// and Messaging clients.
func InitializeFirebase(ctx context.Context, cfg *config.FirebaseConfig) (*auth.Client, *messaging.Client, error) {
	if cfg.CredentialsPath == "" {
		return nil, nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required")
	}

	opt := option.WithCredentialsFile(cfg.CredentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get Auth client: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get Messaging client: %w", err)
	}

	return authClient, messagingClient, nil
}
