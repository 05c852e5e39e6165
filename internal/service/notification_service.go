package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"erequisition/internal/metrics"
	"erequisition/internal/model"
	"erequisition/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pusher delivers a payload to the live sessions of one user.
type Pusher interface {
	SendToUser(userID uint, payload []byte) bool
}

// Mailer sends a plain e-mail.
type Mailer interface {
	Send(to, subject, body string) error
}

type NotifyInput struct {
	UserID      uint
	Type        string
	Title       string
	Message     string
	RelatedType string
	RelatedID   *uint
}

type NotificationResponse struct {
	ID          uint    `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	Read        bool    `json:"read"`
	ReadAt      *string `json:"read_at"`
	RelatedType string  `json:"related_type,omitempty"`
	RelatedID   *uint   `json:"related_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type NotificationService interface {
	// Notify persists a notification through the transaction carried by ctx.
	Notify(ctx context.Context, in NotifyInput) (*model.Notification, error)
	// Deliver pushes already committed notifications. It never fails the caller.
	Deliver(items []model.Notification)
	List(ctx context.Context, actor Actor, unreadOnly bool, page, limit int) ([]NotificationResponse, int64, error)
	MarkRead(ctx context.Context, actor Actor, id uint) (NotificationResponse, error)
	MarkAllRead(ctx context.Context, actor Actor) (int64, error)
	UnreadCount(ctx context.Context, actor Actor) (int64, error)
}

type notificationService struct {
	repo     repository.NotificationRepository
	userRepo repository.UserRepository
	pusher   Pusher
	mailer   Mailer
	logger   *zap.Logger
}

// NewNotificationService wires optional delivery channels; pusher and mailer may be nil.
func NewNotificationService(repo repository.NotificationRepository, userRepo repository.UserRepository, pusher Pusher, mailer Mailer, logger *zap.Logger) NotificationService {
	return &notificationService{
		repo:     repo,
		userRepo: userRepo,
		pusher:   pusher,
		mailer:   mailer,
		logger:   logger,
	}
}

func (s *notificationService) Notify(ctx context.Context, in NotifyInput) (*model.Notification, error) {
	n := &model.Notification{
		UserID:      in.UserID,
		Type:        in.Type,
		Title:       in.Title,
		Message:     in.Message,
		RelatedType: in.RelatedType,
		RelatedID:   in.RelatedID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}
	return n, nil
}

type pushMessage struct {
	Event        string               `json:"event"`
	Notification NotificationResponse `json:"notification"`
}

func (s *notificationService) Deliver(items []model.Notification) {
	if len(items) == 0 {
		return
	}

	if s.pusher != nil {
		for _, n := range items {
			payload, err := json.Marshal(pushMessage{Event: "notification", Notification: toNotificationResponse(n)})
			if err != nil {
				continue
			}
			ok := s.pusher.SendToUser(n.UserID, payload)
			metrics.RecordDelivery("websocket", ok)
		}
	}

	if s.mailer != nil {
		batch := append([]model.Notification(nil), items...)
		go s.mail(batch)
	}
}

func (s *notificationService) mail(items []model.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ids := make([]uint, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.UserID)
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Notification e-mail skipped: recipient lookup failed", zap.Error(err))
		return
	}
	emails := make(map[uint]string, len(users))
	for _, u := range users {
		emails[u.ID] = u.Email
	}

	for _, n := range items {
		to, ok := emails[n.UserID]
		if !ok || to == "" {
			continue
		}
		err := s.mailer.Send(to, n.Title, n.Message)
		metrics.RecordDelivery("email", err == nil)
		if err != nil {
			s.logger.Warn("Notification e-mail failed",
				zap.Uint("notification_id", n.ID),
				zap.String("to", to),
				zap.Error(err))
		}
	}
}

func (s *notificationService) List(ctx context.Context, actor Actor, unreadOnly bool, page, limit int) ([]NotificationResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	items, total, err := s.repo.ListForUser(ctx, actor.ID, unreadOnly, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	res := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		res = append(res, toNotificationResponse(n))
	}
	return res, total, nil
}

func (s *notificationService) MarkRead(ctx context.Context, actor Actor, id uint) (NotificationResponse, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotificationResponse{}, newError(KindNotFound, "notification %d not found", id)
		}
		return NotificationResponse{}, fmt.Errorf("failed to load notification: %w", err)
	}
	// other users' notifications are reported as missing
	if n.UserID != actor.ID {
		return NotificationResponse{}, newError(KindNotFound, "notification %d not found", id)
	}

	if !n.Read {
		now := time.Now()
		if err := s.repo.MarkRead(ctx, n.ID, now); err != nil {
			return NotificationResponse{}, fmt.Errorf("failed to mark notification read: %w", err)
		}
		n.Read = true
		n.ReadAt = &now
	}
	return toNotificationResponse(*n), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, actor Actor) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, actor.ID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return count, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	count, err := s.repo.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// outbox collects notifications persisted inside a transaction so they can be
// delivered once it commits.
type outbox struct {
	svc   NotificationService
	items []model.Notification
}

func newOutbox(svc NotificationService) *outbox {
	return &outbox{svc: svc}
}

func (o *outbox) add(ctx context.Context, in NotifyInput) error {
	n, err := o.svc.Notify(ctx, in)
	if err != nil {
		return err
	}
	o.items = append(o.items, *n)
	return nil
}

func (o *outbox) notifyAll(ctx context.Context, userIDs []uint, in NotifyInput) error {
	for _, id := range userIDs {
		in.UserID = id
		if err := o.add(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (o *outbox) flush() {
	o.svc.Deliver(o.items)
	o.items = nil
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	resp := NotificationResponse{
		ID:          n.ID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		Read:        n.Read,
		RelatedType: n.RelatedType,
		RelatedID:   n.RelatedID,
		CreatedAt:   n.CreatedAt.Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		s := n.ReadAt.Format(time.RFC3339)
		resp.ReadAt = &s
	}
	return resp
}
