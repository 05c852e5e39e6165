package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"erequisition/internal/model"
	"erequisition/internal/repository"

	"gorm.io/datatypes"
)

type AuditEventResponse struct {
	ID         uint            `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uint            `json:"entity_id"`
	Action     string          `json:"action"`
	ActorID    *uint           `json:"actor_id"`
	ActorName  string          `json:"actor_name"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

type AuditFilter struct {
	EntityType string
	EntityID   *uint
	Page       int
	Limit      int
}

type AuditService interface {
	// Record appends an event through the transaction carried by ctx. A failure
	// must abort the caller's transaction.
	Record(ctx context.Context, entityType string, entityID uint, action string, actorID *uint, metadata map[string]interface{}) error
	List(ctx context.Context, actor Actor, filter AuditFilter) ([]AuditEventResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) Record(ctx context.Context, entityType string, entityID uint, action string, actorID *uint, metadata map[string]interface{}) error {
	event := &model.AuditEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		event.Metadata = datatypes.JSON(raw)
	}

	if err := s.repo.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *auditService) List(ctx context.Context, actor Actor, filter AuditFilter) ([]AuditEventResponse, int64, error) {
	if err := actor.requireAdmin("view the audit log"); err != nil {
		return nil, 0, err
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	events, total, err := s.repo.List(ctx, repository.AuditFilter{
		EntityType: filter.EntityType,
		EntityID:   filter.EntityID,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit log: %w", err)
	}

	res := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		actorName := "System"
		if e.Actor != nil {
			actorName = e.Actor.Name
		}
		item := AuditEventResponse{
			ID:         e.ID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Action:     e.Action,
			ActorID:    e.ActorID,
			ActorName:  actorName,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		}
		if len(e.Metadata) > 0 {
			item.Metadata = json.RawMessage(e.Metadata)
		}
		res = append(res, item)
	}

	return res, total, nil
}
