package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events. wrap, when set, decorates every handler;
// the notification worker uses it to move delivery onto its queue.
func (n *NotificationService) RegisterHandlers(wrap func(events.EventHandler) events.EventHandler) {
	if n.dispatcher == nil {
		return
	}
	if wrap == nil {
		wrap = func(h events.EventHandler) events.EventHandler { return h }
	}
	subscriptions := map[events.EventType]events.EventHandler{
		events.EventIncidentCreated:       n.handleIncidentCreated,
		events.EventIncidentStatusChanged: n.handleIncidentStatusChanged,
		events.EventWorkflowCreated:       n.handleWorkflowEvent,
		events.EventWorkflowAdvanced:      n.handleWorkflowEvent,
		events.EventWorkflowRolledBack:    n.handleWorkflowEvent,
		events.EventWorkflowCancelled:     n.handleWorkflowEvent,
	}
	for eventType, handler := range subscriptions {
		n.dispatcher.Subscribe(eventType, wrap(handler))
	}
}

func (n *NotificationService) handleIncidentCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("IncidentCreated", zap.String("incident_id", event.EntityID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleIncidentStatusChanged(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.IncidentStatusChangedPayload)
	n.logger.Info("IncidentStatusChanged",
		zap.String("incident_id", event.EntityID),
		zap.String("old_status", string(payload.OldStatus)),
		zap.String("new_status", string(payload.NewStatus)))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleWorkflowEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("WorkflowEvent",
		zap.String("event_type", string(event.Type)),
		zap.String("workflow_id", event.EntityID),
		zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("entity_id", event.EntityID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("entity_id", event.EntityID),
		zap.String("event_type", string(event.Type)))
}
