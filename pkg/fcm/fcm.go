package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Client wraps Firebase Cloud Messaging functionality
type Client struct {
	messagingClient *messaging.Client
	log             *zap.Logger
}

// NewClient creates a new FCM client using the provided credentials file
func NewClient(ctx context.Context, credentialsFile string, log *zap.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		messagingClient: messagingClient,
		log:             log.Named("fcm"),
	}, nil
}

// NotificationData contains the data to send in a push notification
type NotificationData struct {
	Title string
	Body  string
	Data  map[string]string // Custom data payload
	Link  string            // URL opened when the notification is clicked
}

// SendToDevices sends a push notification to multiple device tokens.
// Returns the tokens that were rejected so callers can forget them.
func (c *Client) SendToDevices(ctx context.Context, tokens []string, n NotificationData) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: n.Title,
				Body:  n.Body,
				Icon:  "/icon-192.svg",
			},
		},
	}
	if n.Link != "" {
		message.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: n.Link}
	}

	response, err := c.messagingClient.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM multicast message: %w", err)
	}

	c.log.Debug("multicast sent", zap.Int("success", response.SuccessCount), zap.Int("failure", response.FailureCount))

	var failedTokens []string
	for i, resp := range response.Responses {
		if !resp.Success {
			failedTokens = append(failedTokens, tokens[i])
			c.log.Info("device rejected notification", zap.String("token_prefix", shorten(tokens[i])), zap.Error(resp.Error))
		}
	}

	return failedTokens, nil
}

func shorten(token string) string {
	if len(token) > 12 {
		return token[:12] + "..."
	}
	return token
}
