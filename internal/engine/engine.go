package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/history"
	"ideaforge/internal/notify"
	"ideaforge/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Writer
	Notify  notify.Sink
	Config  *config.Config
	Now     func() time.Time
}

// ErrNotAuthorized marks an operation attempted by a user who is not the
// addressee of the resource, distinct from the resource not existing.
var ErrNotAuthorized = errors.New("not authorized")

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		History: history.Writer{DB: db},
		Notify:  notify.Sink{Repo: repo.Repo{DB: db}},
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateUser registers a wallet-keyed user. Connecting a wallet that is
// already registered returns the existing row instead of failing on the
// unique constraint.
func (e Engine) CreateUser(ctx context.Context, wallet, nickname string) (domain.User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return domain.User{}, errors.New("wallet address is required")
	}
	if existing, err := e.Repo.GetUserByWallet(ctx, wallet); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	now := e.timestamp()
	u := domain.User{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if nickname != "" {
		u.Nickname = &nickname
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// IdeaCreateOptions are parameters for submitting an idea.
type IdeaCreateOptions struct {
	OwnerUserID string
	Title       string
	Target      string
	Why         string
	What        string
	How         string
	Impact      string
}

// CreateIdea submits an idea at the first lifecycle stage and seeds its
// progression history.
func (e Engine) CreateIdea(ctx context.Context, opts IdeaCreateOptions) (domain.Idea, error) {
	if opts.Title == "" {
		return domain.Idea{}, errors.New("title is required")
	}
	if opts.OwnerUserID != "" {
		if _, err := e.Repo.GetUser(ctx, opts.OwnerUserID); err != nil {
			return domain.Idea{}, fmt.Errorf("owner: %w", err)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Idea{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	i := domain.Idea{
		ID:        uuid.NewString(),
		Title:     opts.Title,
		Target:    opts.Target,
		Why:       opts.Why,
		What:      opts.What,
		How:       opts.How,
		Impact:    opts.Impact,
		Status:    domain.StatusIdea,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.OwnerUserID != "" {
		i.OwnerUserID = &opts.OwnerUserID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO ideas(id,owner_user_id,title,target,why_description,what_description,how_description,impact_description,status,likes_count,comments_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,0,0,?,?)`,
		i.ID, nullableStr(opts.OwnerUserID), i.Title, i.Target, i.Why, i.What, i.How, i.Impact, string(i.Status), i.CreatedAt, i.UpdatedAt); err != nil {
		return domain.Idea{}, fmt.Errorf("insert idea: %w", err)
	}
	if err := e.History.Append(ctx, tx, i.ID, nil, domain.StatusIdea, domain.TriggerManual, opts.OwnerUserID, nil); err != nil {
		return domain.Idea{}, err
	}
	if opts.OwnerUserID != "" {
		if err := e.Repo.InsertActivity(ctx, tx, domain.Activity{
			UserID: opts.OwnerUserID, IdeaID: i.ID, Type: domain.ActivityEdit, CreatedAt: now,
		}); err != nil {
			return domain.Idea{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Idea{}, err
	}
	return i, nil
}

// UpdateIdeaContent edits the descriptive fields and records an EDIT
// activity, which resets the inactivity clock.
func (e Engine) UpdateIdeaContent(ctx context.Context, i domain.Idea, editorUserID string) (domain.Idea, error) {
	current, err := e.Repo.GetIdea(ctx, i.ID)
	if err != nil {
		return domain.Idea{}, err
	}
	if current.OwnerUserID == nil || *current.OwnerUserID != editorUserID {
		return domain.Idea{}, ErrNotAuthorized
	}
	i.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateIdea(ctx, i); err != nil {
		return domain.Idea{}, err
	}
	if err := e.RecordActivity(ctx, editorUserID, i.ID, domain.ActivityEdit); err != nil {
		return domain.Idea{}, err
	}
	return e.Repo.GetIdea(ctx, i.ID)
}

// ArchiveIdea moves an idea to archive from any live state. Only the owner
// may archive.
func (e Engine) ArchiveIdea(ctx context.Context, ideaID, actorUserID string) (domain.Idea, error) {
	idea, err := e.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return domain.Idea{}, err
	}
	if idea.OwnerUserID == nil || *idea.OwnerUserID != actorUserID {
		return domain.Idea{}, ErrNotAuthorized
	}
	if !domain.CanTransition(idea.Status, domain.StatusArchive) {
		return domain.Idea{}, fmt.Errorf("cannot archive idea in status %s", idea.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Idea{}, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.UpdateIdeaStatusIf(ctx, tx, ideaID, idea.Status, domain.StatusArchive, e.timestamp())
	if err != nil {
		return domain.Idea{}, err
	}
	if !ok {
		return domain.Idea{}, fmt.Errorf("idea %s changed status concurrently", ideaID)
	}
	from := idea.Status
	if err := e.History.Append(ctx, tx, ideaID, &from, domain.StatusArchive, domain.TriggerManual, actorUserID, nil); err != nil {
		return domain.Idea{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Idea{}, err
	}
	return e.Repo.GetIdea(ctx, ideaID)
}

// RecordActivity appends one engagement fact outside any larger operation.
func (e Engine) RecordActivity(ctx context.Context, userID, ideaID string, typ domain.ActivityType) error {
	return e.Repo.InsertActivity(ctx, nil, domain.Activity{
		UserID:    userID,
		IdeaID:    ideaID,
		Type:      typ,
		CreatedAt: e.timestamp(),
	})
}

// ToggleLike adds or removes a user's like. Adding a like records a LIKE
// activity and immediately re-evaluates the promotion rules for the idea.
// Returns the refreshed idea and whether the like now exists.
func (e Engine) ToggleLike(ctx context.Context, ideaID, userID string) (domain.Idea, bool, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.Idea{}, false, fmt.Errorf("user: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Idea{}, false, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetIdeaTx(ctx, tx, ideaID); err != nil {
		return domain.Idea{}, false, err
	}
	now := e.timestamp()
	liked := false
	removed, err := e.Repo.DeleteLike(ctx, tx, ideaID, userID)
	if err != nil {
		return domain.Idea{}, false, err
	}
	if removed {
		if err := e.Repo.AdjustLikesCount(ctx, tx, ideaID, -1, now); err != nil {
			return domain.Idea{}, false, err
		}
	} else {
		liked = true
		if err := e.Repo.InsertLike(ctx, tx, domain.Like{
			ID: uuid.NewString(), IdeaID: ideaID, UserID: userID, CreatedAt: now,
		}); err != nil {
			return domain.Idea{}, false, err
		}
		if err := e.Repo.AdjustLikesCount(ctx, tx, ideaID, 1, now); err != nil {
			return domain.Idea{}, false, err
		}
		if err := e.Repo.InsertActivity(ctx, tx, domain.Activity{
			UserID: userID, IdeaID: ideaID, Type: domain.ActivityLike, CreatedAt: now,
		}); err != nil {
			return domain.Idea{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Idea{}, false, err
	}
	if liked {
		// Inline promotion check so an idea crossing its threshold moves
		// without waiting for the next sweep. The like has already
		// committed, so a failed check must not fail the call; the next
		// sweep retries it.
		if _, err := e.CheckIdea(ctx, ideaID, domain.TriggerLikeThreshold, userID); err != nil {
			if e.Notify.Log != nil {
				e.Notify.Log.Warn("inline promotion check failed",
					zap.String("idea_id", ideaID), zap.Error(err))
			}
		}
	}
	refreshed, err := e.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return domain.Idea{}, false, err
	}
	return refreshed, liked, nil
}

// AddComment stores a comment, records a COMMENT activity, and notifies the
// idea owner unless they wrote it themselves.
func (e Engine) AddComment(ctx context.Context, ideaID, userID, content string) (domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Comment{}, errors.New("content is required")
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.Comment{}, fmt.Errorf("user: %w", err)
	}
	idea, err := e.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return domain.Comment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	c := domain.Comment{
		ID:        uuid.NewString(),
		IdeaID:    ideaID,
		UserID:    userID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Repo.InsertActivity(ctx, tx, domain.Activity{
		UserID: userID, IdeaID: ideaID, Type: domain.ActivityComment, CreatedAt: now,
	}); err != nil {
		return domain.Comment{}, err
	}
	if idea.OwnerUserID != nil && *idea.OwnerUserID != userID {
		if err := e.Notify.Send(ctx, tx, notify.Message{
			UserID: *idea.OwnerUserID,
			IdeaID: ideaID,
			Type:   domain.NotifyComment,
			Title:  "New comment",
			Body:   fmt.Sprintf("Your idea %q received a new comment.", idea.Title),
		}); err != nil {
			return domain.Comment{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// RequestCollaboration files a collaboration request and notifies the owner.
func (e Engine) RequestCollaboration(ctx context.Context, ideaID, userID, role, message string) (domain.Collaboration, error) {
	if role == "" {
		role = "contributor"
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.Collaboration{}, fmt.Errorf("user: %w", err)
	}
	idea, err := e.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return domain.Collaboration{}, err
	}
	now := e.timestamp()
	c := domain.Collaboration{
		ID:        uuid.NewString(),
		IdeaID:    ideaID,
		UserID:    userID,
		Role:      role,
		Status:    "pending",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if message != "" {
		c.Message = &message
	}
	if err := e.Repo.InsertCollaboration(ctx, c); err != nil {
		return domain.Collaboration{}, err
	}
	if idea.OwnerUserID != nil && *idea.OwnerUserID != userID {
		if err := e.Notify.Send(ctx, nil, notify.Message{
			UserID:         *idea.OwnerUserID,
			IdeaID:         ideaID,
			Type:           domain.NotifyCollaboration,
			Title:          "Collaboration request",
			Body:           fmt.Sprintf("A user wants to collaborate on %q.", idea.Title),
			ActionRequired: true,
		}); err != nil {
			return domain.Collaboration{}, err
		}
	}
	return c, nil
}

// ResolveCollaboration lets the idea owner accept or decline a request.
func (e Engine) ResolveCollaboration(ctx context.Context, collabID, actorUserID string, accept bool) (domain.Collaboration, error) {
	c, err := e.Repo.GetCollaboration(ctx, collabID)
	if err != nil {
		return domain.Collaboration{}, err
	}
	idea, err := e.Repo.GetIdea(ctx, c.IdeaID)
	if err != nil {
		return domain.Collaboration{}, err
	}
	if idea.OwnerUserID == nil || *idea.OwnerUserID != actorUserID {
		return domain.Collaboration{}, ErrNotAuthorized
	}
	status := "declined"
	if accept {
		status = "accepted"
	}
	if err := e.Repo.UpdateCollaborationStatus(ctx, collabID, status, e.timestamp()); err != nil {
		return domain.Collaboration{}, err
	}
	if err := e.Notify.Send(ctx, nil, notify.Message{
		UserID: c.UserID,
		IdeaID: c.IdeaID,
		Type:   domain.NotifyCollaboration,
		Title:  "Collaboration " + status,
		Body:   fmt.Sprintf("Your collaboration request on %q was %s.", idea.Title, status),
	}); err != nil {
		return domain.Collaboration{}, err
	}
	return e.Repo.GetCollaboration(ctx, collabID)
}

// Stats is the per-stage breakdown plus overall progression rate.
type Stats struct {
	Total           int                        `json:"total"`
	ByStatus        map[domain.Status]int      `json:"by_status"`
	ByTrigger       map[domain.TriggerType]int `json:"by_trigger"`
	ProgressionRate float64                    `json:"progression_rate"`
}

// ProgressionStats reports how the idea population is distributed across the
// lifecycle and which triggers moved it. ProgressionRate is the share of
// non-archived ideas that moved past the initial stage.
func (e Engine) ProgressionStats(ctx context.Context) (Stats, error) {
	counts, err := e.Repo.CountIdeasByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	triggers, err := e.History.CountByTrigger(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{ByStatus: counts, ByTrigger: triggers}
	for _, n := range counts {
		s.Total += n
	}
	live := s.Total - counts[domain.StatusArchive]
	if live > 0 {
		progressed := live - counts[domain.StatusIdea]
		s.ProgressionRate = float64(progressed) / float64(live) * 100
	}
	return s, nil
}

func nullableStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
