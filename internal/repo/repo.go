package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,wallet_address,nickname,avatar_url,bio,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.WalletAddress, nullableStringPtr(u.Nickname), nullableStringPtr(u.AvatarURL), nullableStringPtr(u.Bio), u.CreatedAt, u.UpdatedAt)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var nickname, avatar, bio sql.NullString
	err := row.Scan(&u.ID, &u.WalletAddress, &nickname, &avatar, &bio, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if nickname.Valid {
		u.Nickname = &nickname.String
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	if bio.Valid {
		u.Bio = &bio.String
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,wallet_address,nickname,avatar_url,bio,created_at,updated_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByWallet(ctx context.Context, wallet string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,wallet_address,nickname,avatar_url,bio,created_at,updated_at FROM users WHERE wallet_address=?`, wallet))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,wallet_address,nickname,avatar_url,bio,created_at,updated_at FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var nickname, avatar, bio sql.NullString
		if err := rows.Scan(&u.ID, &u.WalletAddress, &nickname, &avatar, &bio, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if nickname.Valid {
			u.Nickname = &nickname.String
		}
		if avatar.Valid {
			u.AvatarURL = &avatar.String
		}
		if bio.Valid {
			u.Bio = &bio.String
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// CountUsers returns the registered population used as the like-ratio
// denominator.
func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) InsertIdea(ctx context.Context, i domain.Idea) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO ideas(id,owner_user_id,title,target,why_description,what_description,how_description,impact_description,status,likes_count,comments_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		i.ID, nullableStringPtr(i.OwnerUserID), i.Title, i.Target, i.Why, i.What, i.How, i.Impact,
		i.Status, i.LikesCount, i.CommentsCount, i.CreatedAt, i.UpdatedAt)
	return err
}

const ideaColumns = `id,owner_user_id,title,target,why_description,what_description,how_description,impact_description,status,likes_count,comments_count,created_at,updated_at`

func scanIdea(row *sql.Row) (domain.Idea, error) {
	var i domain.Idea
	var owner sql.NullString
	err := row.Scan(&i.ID, &owner, &i.Title, &i.Target, &i.Why, &i.What, &i.How, &i.Impact,
		&i.Status, &i.LikesCount, &i.CommentsCount, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	if owner.Valid {
		i.OwnerUserID = &owner.String
	}
	return i, err
}

func (r Repo) GetIdea(ctx context.Context, id string) (domain.Idea, error) {
	return scanIdea(r.DB.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=?`, id))
}

func (r Repo) GetIdeaTx(ctx context.Context, tx *sql.Tx, id string) (domain.Idea, error) {
	return scanIdea(tx.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=?`, id))
}

type IdeaFilters struct {
	Status      string
	OwnerUserID string
	Limit       int
}

func (r Repo) ListIdeas(ctx context.Context, f IdeaFilters) ([]domain.Idea, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OwnerUserID != "" {
		clauses = append(clauses, "owner_user_id=?")
		args = append(args, f.OwnerUserID)
	}
	query := `SELECT ` + ideaColumns + ` FROM ideas`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIdeas(rows)
}

// ListIdeasByStatuses returns ideas in any of the given statuses, oldest
// first so sweeps process long-waiting ideas before fresh ones.
func (r Repo) ListIdeasByStatuses(ctx context.Context, statuses []domain.Status) ([]domain.Idea, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE status IN (`+placeholders+`) ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIdeas(rows)
}

func collectIdeas(rows *sql.Rows) ([]domain.Idea, error) {
	var res []domain.Idea
	for rows.Next() {
		var i domain.Idea
		var owner sql.NullString
		if err := rows.Scan(&i.ID, &owner, &i.Title, &i.Target, &i.Why, &i.What, &i.How, &i.Impact,
			&i.Status, &i.LikesCount, &i.CommentsCount, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		if owner.Valid {
			i.OwnerUserID = &owner.String
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

// UpdateIdeaStatusIf moves an idea from -> to only if its stored status still
// equals from. Returns false without error when another writer got there
// first; this is how promotions stay idempotent under concurrent sweeps.
func (r Repo) UpdateIdeaStatusIf(ctx context.Context, tx *sql.Tx, id string, from, to domain.Status, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), updatedAt, id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateIdeaOwner reassigns ownership; used when a delegation is accepted.
func (r Repo) UpdateIdeaOwner(ctx context.Context, tx *sql.Tx, id, ownerUserID, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE ideas SET owner_user_id=?, updated_at=? WHERE id=?`, ownerUserID, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateIdea(ctx context.Context, i domain.Idea) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE ideas SET title=?, target=?, why_description=?, what_description=?, how_description=?, impact_description=?, updated_at=? WHERE id=?`,
		i.Title, i.Target, i.Why, i.What, i.How, i.Impact, i.UpdatedAt, i.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountIdeasByStatus returns a per-stage breakdown for stats reporting.
func (r Repo) CountIdeasByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM ideas GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.Status]int{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(s)] = n
	}
	return counts, rows.Err()
}

// UpsertSettings persists the active engine configuration as the single
// settings row.
func (r Repo) UpsertSettings(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO settings(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetSettings(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM settings WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}
