package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"ideaforge/internal/domain"
)

const notificationColumns = `id,user_id,idea_id,type,title,message,action_required,data_json,read_at,created_at`

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	actionRequired := 0
	if n.ActionRequired {
		actionRequired = 1
	}
	_, err := exec(`INSERT INTO notifications(id,user_id,idea_id,type,title,message,action_required,data_json,read_at,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, nullableStringPtr(n.IdeaID), string(n.Type), n.Title, n.Message, actionRequired,
		nullableStringPtr(n.DataJSON), nullableStringPtr(n.ReadAt), n.CreatedAt)
	return err
}

type NotificationFilters struct {
	UserID     string
	UnreadOnly bool
	Limit      int
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.UnreadOnly {
		clauses = append(clauses, "read_at IS NULL")
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var ideaID, dataJSON, readAt sql.NullString
		var actionRequired int
		if err := rows.Scan(&n.ID, &n.UserID, &ideaID, &n.Type, &n.Title, &n.Message, &actionRequired, &dataJSON, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ActionRequired = actionRequired != 0
		if ideaID.Valid {
			n.IdeaID = &ideaID.String
		}
		if dataJSON.Valid {
			n.DataJSON = &dataJSON.String
		}
		if readAt.Valid {
			n.ReadAt = &readAt.String
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=? AND read_at IS NULL`, userID).Scan(&n)
	return n, err
}

// MarkNotificationRead marks a single notification read; userID scopes the
// update so one user cannot mark another's notifications.
func (r Repo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE id=? AND user_id=? AND read_at IS NULL`, now, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE user_id=? AND read_at IS NULL`, now, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
