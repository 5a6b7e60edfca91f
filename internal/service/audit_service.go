package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/restaurant-api/internal/events"
)

const auditStreamMaxLen = 10000

// AuditService records account and session events. Every event is logged;
// when a stream is configured it is also appended to a Redis stream.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	stream     redis.Cmdable
	streamKey  string
}

// NewAuditService creates the service. stream may be nil or streamKey empty
// to log only.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, stream redis.Cmdable, streamKey string) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger,
		stream:     stream,
		streamKey:  streamKey,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, t := range []events.EventType{
		events.EventUserRegistered,
		events.EventUserLoggedIn,
		events.EventUserLoggedOut,
		events.EventRefreshRotated,
		events.EventUserUpdated,
		events.EventUserDeleted,
	} {
		a.dispatcher.Subscribe(t, a.handle)
	}
}

func (a *AuditService) handle(ctx context.Context, event events.Event) error {
	a.logger.Info("auth event",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload),
	)
	if a.stream == nil || a.streamKey == "" {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	return a.stream.XAdd(ctx, &redis.XAddArgs{
		Stream: a.streamKey,
		MaxLen: auditStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":       event.ID,
			"type":     string(event.Type),
			"user_id":  event.UserID,
			"actor_id": event.ActorID,
			"ts":       event.Timestamp.UnixMilli(),
			"payload":  string(payload),
		},
	}).Err()
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	_ = dispatcher.Publish(ctx, event)
}
