package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/FreightBox/internal/broker/messages"
	"github.com/BearBump/FreightBox/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Store interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	InsertNotificationOnce(ctx context.Context, n *models.Notification) (bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Dispatcher сохраняет уведомление и затем публикует его в Kafka.
// Источник истины это таблица notifications, публикация best-effort.
type Dispatcher struct {
	store    Store
	producer Producer
	topic    string
	now      func() time.Time
}

func New(store Store, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{
		store:    store,
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n *models.Notification) error {
	d.fill(n)
	if err := d.store.InsertNotification(ctx, n); err != nil {
		return errors.Wrap(err, "insert notification")
	}
	d.publish(ctx, n)
	return nil
}

// NotifyOnce создаёт уведомление, только если такого (user, route, type) ещё не было.
func (d *Dispatcher) NotifyOnce(ctx context.Context, n *models.Notification) (bool, error) {
	d.fill(n)
	created, err := d.store.InsertNotificationOnce(ctx, n)
	if err != nil {
		return false, errors.Wrap(err, "insert notification once")
	}
	if created {
		d.publish(ctx, n)
	}
	return created, nil
}

func (d *Dispatcher) fill(n *models.Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
}

func (d *Dispatcher) publish(ctx context.Context, n *models.Notification) {
	if d.producer == nil || d.topic == "" {
		return
	}
	b, err := json.Marshal(messages.NotificationCreated{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		RouteID:        n.RouteID,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		slog.Error("marshal notification", "notification_id", n.ID.String(), "error", err.Error())
		return
	}
	if err := d.producer.Publish(ctx, d.topic, []byte(n.UserID.String()), b); err != nil {
		slog.Warn("publish notification", "notification_id", n.ID.String(), "type", string(n.Type), "error", err.Error())
	}
}
