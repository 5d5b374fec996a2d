package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ideaforge/internal/domain"
)

// ErrPendingExists reports that an idea already has a pending delegation.
// The partial unique index idea_delegations_one_pending is the source of
// truth; this sentinel translates its violation for callers.
var ErrPendingExists = errors.New("pending delegation exists")

const delegationColumns = `id,idea_id,from_user_id,to_user_id,reason,status,delegated_at,accepted_at`

// InsertDelegation creates a pending delegation. Returns ErrPendingExists if
// another pending delegation already holds the per-idea slot.
func (r Repo) InsertDelegation(ctx context.Context, tx *sql.Tx, d domain.Delegation) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO idea_delegations(id,idea_id,from_user_id,to_user_id,reason,status,delegated_at,accepted_at) VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.IdeaID, nullableStringPtr(d.FromUserID), d.ToUserID, string(d.Reason), string(d.Status), d.DelegatedAt, nullableStringPtr(d.AcceptedAt))
	// SQLite reports the partial-index violation as a unique constraint on
	// the indexed column, not by index name.
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		strings.Contains(se.Error(), "idea_delegations.idea_id") {
		return ErrPendingExists
	}
	return err
}

func scanDelegation(row *sql.Row) (domain.Delegation, error) {
	var d domain.Delegation
	var fromUser, acceptedAt sql.NullString
	err := row.Scan(&d.ID, &d.IdeaID, &fromUser, &d.ToUserID, &d.Reason, &d.Status, &d.DelegatedAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if fromUser.Valid {
		d.FromUserID = &fromUser.String
	}
	if acceptedAt.Valid {
		d.AcceptedAt = &acceptedAt.String
	}
	return d, err
}

func (r Repo) GetDelegation(ctx context.Context, id string) (domain.Delegation, error) {
	return scanDelegation(r.DB.QueryRowContext(ctx, `SELECT `+delegationColumns+` FROM idea_delegations WHERE id=?`, id))
}

// PendingDelegation returns the pending delegation for an idea, if one exists.
func (r Repo) PendingDelegation(ctx context.Context, ideaID string) (domain.Delegation, error) {
	return scanDelegation(r.DB.QueryRowContext(ctx, `SELECT `+delegationColumns+` FROM idea_delegations WHERE idea_id=? AND status='pending'`, ideaID))
}

// ResolveDelegation flips a pending delegation to accepted or declined only
// if it is still pending. Returns false when the delegation was already
// resolved by another writer.
func (r Repo) ResolveDelegation(ctx context.Context, tx *sql.Tx, id string, status domain.DelegationStatus, acceptedAt *string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE idea_delegations SET status=?, accepted_at=? WHERE id=? AND status='pending'`,
		string(status), nullableStringPtr(acceptedAt), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type DelegationFilters struct {
	IdeaID   string
	ToUserID string
	Status   string
}

func (r Repo) ListDelegations(ctx context.Context, f DelegationFilters) ([]domain.Delegation, error) {
	var clauses []string
	var args []any
	if f.IdeaID != "" {
		clauses = append(clauses, "idea_id=?")
		args = append(args, f.IdeaID)
	}
	if f.ToUserID != "" {
		clauses = append(clauses, "to_user_id=?")
		args = append(args, f.ToUserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + delegationColumns + ` FROM idea_delegations`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY delegated_at DESC, id DESC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Delegation
	for rows.Next() {
		var d domain.Delegation
		var fromUser, acceptedAt sql.NullString
		if err := rows.Scan(&d.ID, &d.IdeaID, &fromUser, &d.ToUserID, &d.Reason, &d.Status, &d.DelegatedAt, &acceptedAt); err != nil {
			return nil, err
		}
		if fromUser.Valid {
			d.FromUserID = &fromUser.String
		}
		if acceptedAt.Valid {
			d.AcceptedAt = &acceptedAt.String
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
