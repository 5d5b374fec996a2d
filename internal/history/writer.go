// Package history appends idea_progressions rows, the append-only audit
// trail of every status change.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ideaforge/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// TriggerData is the free-form context captured with a progression, such as
// the like ratio that fired a threshold rule.
type TriggerData map[string]any

// Append records one progression inside the caller's transaction so the
// status change and its audit entry commit or roll back together.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, ideaID string, from *domain.Status, to domain.Status, trigger domain.TriggerType, triggeredBy string, data TriggerData) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if data == nil {
		data = TriggerData{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal trigger data: %w", err)
	}
	var fromStatus any
	if from != nil {
		fromStatus = string(*from)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO idea_progressions(idea_id,from_status,to_status,trigger_type,trigger_data,triggered_by,created_at) VALUES (?,?,?,?,?,?,?)`,
		ideaID, fromStatus, string(to), string(trigger), string(payload), nullable(triggeredBy), ts)
	return err
}

// List returns the progression history for an idea, oldest first.
func (w Writer) List(ctx context.Context, ideaID string) ([]domain.Progression, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT id,idea_id,from_status,to_status,trigger_type,trigger_data,triggered_by,created_at FROM idea_progressions WHERE idea_id=? ORDER BY created_at ASC, id ASC`, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Progression
	for rows.Next() {
		var p domain.Progression
		var fromStatus, triggerData, triggeredBy sql.NullString
		if err := rows.Scan(&p.ID, &p.IdeaID, &fromStatus, &p.ToStatus, &p.TriggerType, &triggerData, &triggeredBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		if fromStatus.Valid {
			s := domain.Status(fromStatus.String)
			p.FromStatus = &s
		}
		if triggerData.Valid {
			p.TriggerData = triggerData.String
		}
		if triggeredBy.Valid {
			p.TriggeredBy = &triggeredBy.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountByTrigger reports how many progressions each trigger type produced.
func (w Writer) CountByTrigger(ctx context.Context) (map[domain.TriggerType]int, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT trigger_type, COUNT(*) FROM idea_progressions GROUP BY trigger_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.TriggerType]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[domain.TriggerType(t)] = n
	}
	return counts, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
