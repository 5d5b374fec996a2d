// Package notify is the notification sink: it records notifications in the
// store and optionally fans them out on a pub/sub bus.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ideaforge/internal/domain"
	"ideaforge/internal/repo"
)

type Sink struct {
	Repo repo.Repo
	Bus  Bus
	Log  *zap.Logger
	Now  func() time.Time
}

// Message is what engine callers hand the sink; the sink assigns the ID and
// timestamp.
type Message struct {
	UserID         string
	IdeaID         string
	Type           domain.NotificationType
	Title          string
	Body           string
	ActionRequired bool
	Data           map[string]any
}

// Send stores the notification inside the caller's transaction (tx may be
// nil for standalone sends) and publishes it on the bus after. A bus failure
// is logged, never returned; the row is already durable.
func (s Sink) Send(ctx context.Context, tx *sql.Tx, m Message) error {
	if s.Now == nil {
		s.Now = time.Now
	}
	n := domain.Notification{
		ID:             uuid.NewString(),
		UserID:         m.UserID,
		Type:           m.Type,
		Title:          m.Title,
		Message:        m.Body,
		ActionRequired: m.ActionRequired,
		CreatedAt:      s.Now().UTC().Format(time.RFC3339),
	}
	if m.IdeaID != "" {
		n.IdeaID = &m.IdeaID
	}
	if len(m.Data) > 0 {
		raw, err := json.Marshal(m.Data)
		if err != nil {
			return err
		}
		data := string(raw)
		n.DataJSON = &data
	}
	if err := s.Repo.InsertNotification(ctx, tx, n); err != nil {
		return err
	}
	if s.Bus != nil {
		if err := s.Bus.Publish(ctx, n); err != nil && s.Log != nil {
			s.Log.Warn("notification publish failed",
				zap.String("notification_id", n.ID),
				zap.String("user_id", n.UserID),
				zap.Error(err))
		}
	}
	return nil
}
