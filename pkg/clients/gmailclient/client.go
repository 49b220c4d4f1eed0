package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/jakechorley/donornet/pkg/utils"
)

// Client sends alert emails through Gmail, one at a time
type Client struct {
	service *gmail.Service
	// sender, if set, is the From address; otherwise Gmail uses the account's own
	sender string

	mu       sync.Mutex
	lastSent time.Time
}

// New creates a Gmail client acting as account
func New(ctx context.Context, account *utils.GoogleAccount, sender string) (*Client, error) {
	service, err := gmail.NewService(ctx, account.ClientOption())
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Client{service: service, sender: sender}, nil
}
