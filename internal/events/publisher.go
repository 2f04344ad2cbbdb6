package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/models"
)

// Channel is the Redis pub/sub channel carrying change events. The
// append-only history store subscribing to it lives outside this service.
const Channel = "rota:changes"

// Publisher emits a change event for every mutation. Publishing is best
// effort: a failed emit is logged, never surfaced to the caller, because the
// mutation itself already committed.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher constructs a Publisher. A nil client disables emission.
func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, logger: logger}
}

// Emit publishes one change event.
func (p *Publisher) Emit(ctx context.Context, actor, entity, entityID, action string, payload interface{}) {
	if p == nil || p.client == nil {
		return
	}
	event := models.ChangeEvent{
		ID:         uuid.NewString(),
		Actor:      actor,
		Entity:     entity,
		EntityID:   entityID,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			p.logger.Warn("marshal change payload", zap.String("entity", entity), zap.Error(err))
		} else {
			event.Payload = raw
		}
	}
	raw, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal change event", zap.String("entity", entity), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, Channel, raw).Err(); err != nil {
		p.logger.Warn("publish change event",
			zap.String("entity", entity),
			zap.String("entity_id", entityID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
