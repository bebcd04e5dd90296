package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes for a watched mailbox
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// PushHandler reacts to mailbox changes
type PushHandler interface {
	HandlePush(ctx context.Context, emailAddress string, historyID uint64) error
}

// Service receives Gmail push notifications from Pub/Sub
type Service struct {
	pubsubClient *pubsub.Client
	handler      PushHandler
	log          *zap.Logger
	topicName    string
	subName      string

	mu sync.Mutex
	// last historyId per mailbox, to drop redelivered or stale notifications
	lastHistoryID map[string]uint64
}

// TopicID reduces "projects/p/topics/t" to "t".
func TopicID(topic string) string {
	if i := strings.LastIndex(topic, "/topics/"); i >= 0 {
		return topic[i+len("/topics/"):]
	}
	return topic
}

// NewService connects to Pub/Sub. The subscription is "<topic>-sub".
func NewService(ctx context.Context, projectID, topicName, credentialsFile string, handler PushHandler, log *zap.Logger) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	svc := newService(handler, TopicID(topicName), log)
	svc.pubsubClient = client
	return svc, nil
}

func newService(handler PushHandler, topicID string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		handler:       handler,
		log:           log.Named("pubsub"),
		topicName:     topicID,
		subName:       topicID + "-sub",
		lastHistoryID: make(map[string]uint64),
	}
}

// Start blocks receiving messages until ctx is done
func (s *Service) Start(ctx context.Context) {
	s.log.Info("starting notification service", zap.String("topic", s.topicName), zap.String("subscription", s.subName))

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		s.log.Error("error checking subscription", zap.Error(err))
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			s.log.Error("error checking topic", zap.Error(err))
			return
		}
		if !topicExists {
			s.log.Error("topic does not exist, cannot create subscription", zap.String("topic", s.topicName))
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 60 * time.Second,
		})
		if err != nil {
			s.log.Error("failed to create subscription", zap.Error(err))
			return
		}
		s.log.Info("created subscription", zap.String("subscription", s.subName))
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.HandleMessage(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("error receiving messages", zap.Error(err))
	}
}

// Close releases the Pub/Sub client
func (s *Service) Close() error {
	if s.pubsubClient == nil {
		return nil
	}
	return s.pubsubClient.Close()
}

// HandleMessage decodes one notification and triggers an incremental sync.
// It reports whether the sync was triggered.
func (s *Service) HandleMessage(ctx context.Context, data []byte) bool {
	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		s.log.Warn("failed to unmarshal notification", zap.Error(err))
		return false
	}
	email := strings.ToLower(strings.TrimSpace(n.EmailAddress))
	if email == "" {
		return false
	}

	s.mu.Lock()
	last, seen := s.lastHistoryID[email]
	if seen && n.HistoryID <= last {
		s.mu.Unlock()
		s.log.Debug("skipping duplicate notification",
			zap.String("email", email), zap.Uint64("history_id", n.HistoryID), zap.Uint64("last", last))
		return false
	}
	s.lastHistoryID[email] = n.HistoryID
	s.mu.Unlock()

	if err := s.handler.HandlePush(ctx, email, n.HistoryID); err != nil {
		s.log.Warn("push-triggered sync failed", zap.String("email", email), zap.Error(err))
	}
	return true
}
