package repo

import (
	"context"
	"database/sql"

	"ideaforge/internal/domain"
)

func (r Repo) InsertLike(ctx context.Context, tx *sql.Tx, l domain.Like) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO likes(id,idea_id,user_id,created_at) VALUES (?,?,?,?)`,
		l.ID, l.IdeaID, l.UserID, l.CreatedAt)
	return err
}

// DeleteLike removes a user's like and reports whether one existed.
func (r Repo) DeleteLike(ctx context.Context, tx *sql.Tx, ideaID, userID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE idea_id=? AND user_id=?`, ideaID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AdjustLikesCount keeps the denormalized counter on ideas in step with the
// likes table inside the same transaction.
func (r Repo) AdjustLikesCount(ctx context.Context, tx *sql.Tx, ideaID string, delta int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET likes_count=likes_count+?, updated_at=? WHERE id=?`, delta, updatedAt, ideaID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,idea_id,user_id,content,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.IdeaID, c.UserID, c.Content, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE ideas SET comments_count=comments_count+1, updated_at=? WHERE id=?`, c.UpdatedAt, c.IdeaID)
	return err
}

func (r Repo) ListComments(ctx context.Context, ideaID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,idea_id,user_id,content,created_at,updated_at FROM comments WHERE idea_id=? ORDER BY created_at ASC, id ASC`, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.IdeaID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertCollaboration(ctx context.Context, c domain.Collaboration) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO collaborations(id,idea_id,user_id,role,status,message,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.IdeaID, c.UserID, c.Role, c.Status, nullableStringPtr(c.Message), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) UpdateCollaborationStatus(ctx context.Context, id, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE collaborations SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetCollaboration(ctx context.Context, id string) (domain.Collaboration, error) {
	var c domain.Collaboration
	var message sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,idea_id,user_id,role,status,message,created_at,updated_at FROM collaborations WHERE id=?`, id).
		Scan(&c.ID, &c.IdeaID, &c.UserID, &c.Role, &c.Status, &message, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if message.Valid {
		c.Message = &message.String
	}
	return c, err
}

// ListAcceptedCollaborators returns accepted collaborator user IDs for an
// idea, oldest acceptance first.
func (r Repo) ListAcceptedCollaborators(ctx context.Context, ideaID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM collaborations WHERE idea_id=? AND status='accepted' ORDER BY updated_at ASC, id ASC`, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO user_activities(user_id,idea_id,activity_type,created_at) VALUES (?,?,?,?)`,
		a.UserID, a.IdeaID, string(a.Type), a.CreatedAt)
	return err
}

// ListActivities returns the engagement log for an idea in insertion order.
// The ranker depends on this ordering for deterministic tie-breaking.
func (r Repo) ListActivities(ctx context.Context, ideaID string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,idea_id,activity_type,created_at FROM user_activities WHERE idea_id=? ORDER BY created_at ASC, id ASC`, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.IdeaID, &a.Type, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LastActivityAt returns the most recent engagement timestamp for an idea,
// or "" when the idea has no recorded activity.
func (r Repo) LastActivityAt(ctx context.Context, ideaID string) (string, error) {
	var ts sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(created_at) FROM user_activities WHERE idea_id=?`, ideaID).Scan(&ts)
	if err != nil {
		return "", err
	}
	if !ts.Valid {
		return "", nil
	}
	return ts.String, nil
}
