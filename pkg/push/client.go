package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Config holds Firebase settings. Without CredentialsFile the application
// default credentials are used.
type Config struct {
	ProjectID       string `env:"FCM_PROJECT_ID"`
	CredentialsFile string `env:"FCM_CREDENTIALS_FILE"`
	BatchSize       int    `env:"FCM_BATCH_SIZE" envDefault:"500"`
}

// NewClient initializes a Firebase app and returns its messaging client.
func NewClient(ctx context.Context, cfg Config) (*messaging.Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidConfig)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToConnect, err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToConnect, err)
	}
	return client, nil
}
