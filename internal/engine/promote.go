package engine

import (
	"context"
	"fmt"

	"ideaforge/internal/domain"
	"ideaforge/internal/history"
	"ideaforge/internal/notify"
	"ideaforge/internal/rules"
)

// CheckIdea re-evaluates the promotion rules for one idea and applies the
// promotion if a rule fires. Returns true only when this call moved the
// idea; a concurrent writer landing first yields (false, nil).
func (e Engine) CheckIdea(ctx context.Context, ideaID string, trigger domain.TriggerType, triggeredBy string) (bool, error) {
	idea, err := e.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return false, err
	}
	totalUsers, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	decision := rules.Evaluate(idea, totalUsers, e.Config)
	if decision == nil {
		return false, nil
	}
	return e.promote(ctx, idea, decision, trigger, triggeredBy)
}

// promote applies one earned promotion. The status flip is conditional on
// the stored status still matching the decision's from-status, so two
// writers racing on the same idea produce exactly one progression record.
func (e Engine) promote(ctx context.Context, idea domain.Idea, decision *rules.Decision, trigger domain.TriggerType, triggeredBy string) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	moved, err := e.Repo.UpdateIdeaStatusIf(ctx, tx, idea.ID, decision.FromStatus, decision.ToStatus, e.timestamp())
	if err != nil {
		return false, err
	}
	if !moved {
		return false, nil
	}
	from := decision.FromStatus
	if err := e.History.Append(ctx, tx, idea.ID, &from, decision.ToStatus, trigger, triggeredBy, history.TriggerData(decision.TriggerData())); err != nil {
		return false, err
	}
	if idea.OwnerUserID != nil {
		if err := e.Notify.Send(ctx, tx, notify.Message{
			UserID: *idea.OwnerUserID,
			IdeaID: idea.ID,
			Type:   domain.NotifyStatusChange,
			Title:  "Idea promoted",
			Body:   fmt.Sprintf("Your idea %q advanced from %s to %s.", idea.Title, decision.FromStatus, decision.ToStatus),
			Data:   decision.TriggerData(),
		}); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// AdvanceIdea moves an idea one stage forward manually, owner action only.
func (e Engine) AdvanceIdea(ctx context.Context, ideaID, actorUserID string) (domain.Idea, error) {
	idea, err := e.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return domain.Idea{}, err
	}
	if idea.OwnerUserID == nil || *idea.OwnerUserID != actorUserID {
		return domain.Idea{}, ErrNotAuthorized
	}
	next, ok := idea.Status.Next()
	if !ok {
		return domain.Idea{}, fmt.Errorf("idea in status %s has no next stage", idea.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Idea{}, err
	}
	defer tx.Rollback()

	moved, err := e.Repo.UpdateIdeaStatusIf(ctx, tx, ideaID, idea.Status, next, e.timestamp())
	if err != nil {
		return domain.Idea{}, err
	}
	if !moved {
		return domain.Idea{}, fmt.Errorf("idea %s changed status concurrently", ideaID)
	}
	from := idea.Status
	if err := e.History.Append(ctx, tx, ideaID, &from, next, domain.TriggerManual, actorUserID, nil); err != nil {
		return domain.Idea{}, err
	}
	if err := e.Repo.InsertActivity(ctx, tx, domain.Activity{
		UserID: actorUserID, IdeaID: ideaID, Type: domain.ActivityStatusChange, CreatedAt: e.timestamp(),
	}); err != nil {
		return domain.Idea{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Idea{}, err
	}
	return e.Repo.GetIdea(ctx, ideaID)
}
