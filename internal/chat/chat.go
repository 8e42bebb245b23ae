// Package chat runs one brain-dump turn: classify the message, compose a
// reply and persist the items and the conversation together.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/digitaltwin/internal/classification"
	"github.com/fyrsmithlabs/digitaltwin/internal/composer"
	"github.com/fyrsmithlabs/digitaltwin/internal/logging"
	"github.com/fyrsmithlabs/digitaltwin/internal/store"
	v1 "github.com/fyrsmithlabs/digitaltwin/pkg/api/v1"
)

// Classifier turns a message into items.
type Classifier interface {
	Classify(ctx context.Context, input string, profile classification.Profile) classification.Result
}

// Response is the reply to a chat message.
type Response struct {
	Message string                          `json:"message"`
	Items   []classification.ClassifiedItem `json:"items"`
}

// Service handles chat turns.
type Service struct {
	store      *store.Store
	classifier Classifier
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewService wires a chat service.
func NewService(s *store.Store, c Classifier, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:      s,
		classifier: c,
		logger:     logger,
		tracer:     otel.Tracer("github.com/fyrsmithlabs/digitaltwin/internal/chat"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Send classifies message for userID and stores the outcome. A
// classification failure yields an empty item list, not an error.
func (s *Service) Send(ctx context.Context, userID int64, message string) (*Response, error) {
	if strings.TrimSpace(message) == "" {
		return nil, v1.Invalid("message is required")
	}

	ctx, span := s.tracer.Start(ctx, "chat.send")
	defer span.End()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := s.classifier.Classify(ctx, message, classification.Profile{
		Goals:       user.Goals,
		Personality: user.Personality,
		LifeAreas:   user.LifeAreas,
	})
	items := result.Items
	if items == nil {
		items = []classification.ClassifiedItem{}
	}

	reply := composer.Compose(message, items, user.DisplayName())

	log := s.logger.With(
		zap.Int("items", len(items)),
		zap.Bool("classification_failed", result.Failed()),
	)

	rows := make([]*store.Item, len(items))
	for i, ci := range items {
		rows[i] = itemFromClassified(userID, ci)
	}

	userAt := s.now()
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateItems(ctx, rows); err != nil {
			return fmt.Errorf("save classified items: %w", err)
		}
		return tx.CreateConversation(ctx, &store.Conversation{
			UserID: userID,
			Messages: []store.Message{
				{Role: "user", Content: message, Timestamp: userAt.Format(time.RFC3339)},
				{Role: "assistant", Content: reply, Timestamp: s.now().Format(time.RFC3339)},
			},
		})
	})
	if err != nil {
		log.Warn(ctx, "chat message not saved", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("chat.items", len(items)),
		attribute.Bool("chat.classification_failed", result.Failed()),
	)
	log.Info(ctx, "chat message handled")

	return &Response{Message: reply, Items: items}, nil
}

// History returns the user's most recent conversations, newest first.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx, userID, limit)
}

func itemFromClassified(userID int64, ci classification.ClassifiedItem) *store.Item {
	it := &store.Item{
		UserID:      userID,
		Title:       ci.Title,
		Description: ci.Description,
		Category:    ci.Category,
		Subcategory: ci.Subcategory,
		LifeArea:    ci.LifeArea,
		Status:      store.StatusPending,
	}
	priority := ci.Priority
	it.Priority = &priority
	if ci.Deadline != nil {
		it.Deadline = classification.ParseDeadline(*ci.Deadline)
	}
	return it
}
