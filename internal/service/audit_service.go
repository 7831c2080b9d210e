package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

const (
	auditStatusSuccess = "success"
	auditStatusFailure = "failure"
)

// AuditService persists bus events as audit entries and serves the audit log.
type AuditService struct {
	store  AuditStore
	logger *slog.Logger
}

func NewAuditService(store AuditStore, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{store: store, logger: logger}
}

// Run records every event from bus until ctx is cancelled.
func (s *AuditService) Run(ctx context.Context, bus event.Bus) {
	s.Listen(bus)(ctx)
}

// Listen subscribes to bus right away and returns the blocking consumer, so
// no event published after Listen returns is missed.
func (s *AuditService) Listen(bus event.Bus) func(ctx context.Context) {
	events, unsubscribe := bus.Subscribe()
	return func(ctx context.Context) {
		defer unsubscribe()
		s.consume(ctx, events)
	}
}

func (s *AuditService) consume(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.Record(context.WithoutCancel(ctx), e)
		}
	}
}

func (s *AuditService) Record(ctx context.Context, e event.Event) {
	if s == nil {
		return
	}

	entry := entryFromEvent(e)
	if err := s.store.Log(ctx, entry); err != nil {
		s.logger.Error("write audit entry", "action", entry.Action, "error", err)
	}
}

func entryFromEvent(e event.Event) model.AuditEntry {
	status := auditStatusSuccess
	if e.Type.Failed() {
		status = auditStatusFailure
	}

	occurredAt := e.Timestamp
	if occurredAt == "" {
		occurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	details := e.Payload
	if e.Error != "" && status == auditStatusSuccess && details == nil {
		details = map[string]any{"note": e.Error}
	}

	entry := model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: occurredAt,
		Actor: model.AuditActor{
			UserID:   e.ActorID,
			Username: e.ActorName,
			Role:     e.ActorRole,
			IP:       e.ActorIP,
		},
		Status:   status,
		Resource: e.Resource,
		Details:  details,
	}
	if status == auditStatusFailure {
		entry.Error = e.Error
	}
	return entry
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	for field, raw := range map[string]string{"from": query.From, "to": query.To} {
		if err := validateAuditTime(raw); err != nil {
			return nil, model.Meta{}, apierror.New("BAD_REQUEST", fmt.Sprintf("invalid '%s' datetime format", field), raw, http.StatusBadRequest)
		}
	}
	return s.store.Query(ctx, query)
}

func validateAuditTime(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return nil
	}
	_, err := time.Parse(time.RFC3339, trimmed)
	return err
}
