package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ideaforge/internal/domain"
	"ideaforge/internal/notify"
	"ideaforge/internal/repo"
)

// ErrAlreadyResolved reports an accept/decline against a delegation that is
// no longer pending.
var ErrAlreadyResolved = errors.New("delegation already resolved")

// CheckInactivity proposes a delegation for an idea whose owner has gone
// quiet. It fires only in the configured eligible statuses, only when the
// idea has no pending delegation, and only when a ranked contributor exists.
// Returns nil when nothing was proposed.
func (e Engine) CheckInactivity(ctx context.Context, idea domain.Idea) (*domain.Delegation, error) {
	eligible := false
	for _, s := range e.Config.Delegation.EligibleStatuses {
		if idea.Status == s {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil, nil
	}
	if _, err := e.Repo.PendingDelegation(ctx, idea.ID); err == nil {
		return nil, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	last, err := e.Repo.LastActivityAt(ctx, idea.ID)
	if err != nil {
		return nil, err
	}
	if last == "" {
		last = idea.UpdatedAt
	}
	lastAt, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return nil, fmt.Errorf("parse last activity %q: %w", last, err)
	}
	cutoff := time.Duration(e.Config.Delegation.InactivityDays) * 24 * time.Hour
	if e.now().UTC().Sub(lastAt) < cutoff {
		return nil, nil
	}

	owner := ""
	if idea.OwnerUserID != nil {
		owner = *idea.OwnerUserID
	}
	candidate, found, err := e.TopContributor(ctx, idea.ID, owner)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return e.createDelegation(ctx, idea, candidate, domain.DelegationInactivity)
}

// Delegate is the owner-initiated handover path.
func (e Engine) Delegate(ctx context.Context, ideaID, actorUserID, toUserID string) (*domain.Delegation, error) {
	idea, err := e.Repo.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if idea.OwnerUserID == nil || *idea.OwnerUserID != actorUserID {
		return nil, ErrNotAuthorized
	}
	if toUserID == actorUserID {
		return nil, errors.New("cannot delegate to yourself")
	}
	if _, err := e.Repo.GetUser(ctx, toUserID); err != nil {
		return nil, fmt.Errorf("delegate target: %w", err)
	}
	return e.createDelegation(ctx, idea, toUserID, domain.DelegationManual)
}

// createDelegation inserts the pending handshake and notifies the candidate.
// The partial unique index on pending delegations makes concurrent proposals
// collapse to one; the loser sees repo.ErrPendingExists and backs off
// silently.
func (e Engine) createDelegation(ctx context.Context, idea domain.Idea, toUserID string, reason domain.DelegationReason) (*domain.Delegation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d := domain.Delegation{
		ID:          uuid.NewString(),
		IdeaID:      idea.ID,
		ToUserID:    toUserID,
		Reason:      reason,
		Status:      domain.DelegationPending,
		DelegatedAt: e.timestamp(),
	}
	d.FromUserID = idea.OwnerUserID
	if err := e.Repo.InsertDelegation(ctx, tx, d); err != nil {
		if errors.Is(err, repo.ErrPendingExists) {
			return nil, nil
		}
		return nil, err
	}
	if err := e.Notify.Send(ctx, tx, notify.Message{
		UserID:         toUserID,
		IdeaID:         idea.ID,
		Type:           domain.NotifyDelegation,
		Title:          "Ownership offered",
		Body:           fmt.Sprintf("You have been proposed as the new owner of %q.", idea.Title),
		ActionRequired: true,
		Data:           map[string]any{"delegation_id": d.ID, "reason": string(reason)},
	}); err != nil {
		return nil, err
	}
	// The prior owner hears about deliberate handovers, not about the
	// inactivity sweep acting on their silence.
	if reason != domain.DelegationInactivity && idea.OwnerUserID != nil {
		if err := e.Notify.Send(ctx, tx, notify.Message{
			UserID: *idea.OwnerUserID,
			IdeaID: idea.ID,
			Type:   domain.NotifyDelegation,
			Title:  "Delegation proposed",
			Body:   fmt.Sprintf("Ownership of %q was offered to another user.", idea.Title),
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &d, nil
}

// AcceptDelegation transfers ownership to the candidate. Only the addressee
// may accept, and only while the delegation is still pending.
func (e Engine) AcceptDelegation(ctx context.Context, delegationID, userID string) (domain.Delegation, error) {
	d, err := e.Repo.GetDelegation(ctx, delegationID)
	if err != nil {
		return domain.Delegation{}, err
	}
	if d.ToUserID != userID {
		return domain.Delegation{}, ErrNotAuthorized
	}
	if d.Status != domain.DelegationPending {
		return domain.Delegation{}, ErrAlreadyResolved
	}
	idea, err := e.Repo.GetIdea(ctx, d.IdeaID)
	if err != nil {
		return domain.Delegation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Delegation{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	resolved, err := e.Repo.ResolveDelegation(ctx, tx, delegationID, domain.DelegationAccepted, &now)
	if err != nil {
		return domain.Delegation{}, err
	}
	if !resolved {
		return domain.Delegation{}, ErrAlreadyResolved
	}
	if err := e.Repo.UpdateIdeaOwner(ctx, tx, d.IdeaID, userID, now); err != nil {
		return domain.Delegation{}, err
	}
	if err := e.Repo.InsertActivity(ctx, tx, domain.Activity{
		UserID: userID, IdeaID: d.IdeaID, Type: domain.ActivityStatusChange, CreatedAt: now,
	}); err != nil {
		return domain.Delegation{}, err
	}
	// Both sides of the handshake hear about the transfer.
	if err := e.Notify.Send(ctx, tx, notify.Message{
		UserID: userID,
		IdeaID: d.IdeaID,
		Type:   domain.NotifyDelegation,
		Title:  "You are the new owner",
		Body:   fmt.Sprintf("You accepted ownership of %q.", idea.Title),
	}); err != nil {
		return domain.Delegation{}, err
	}
	if d.FromUserID != nil {
		if err := e.Notify.Send(ctx, tx, notify.Message{
			UserID: *d.FromUserID,
			IdeaID: d.IdeaID,
			Type:   domain.NotifyDelegation,
			Title:  "Ownership transferred",
			Body:   fmt.Sprintf("Ownership of %q has passed to a new owner.", idea.Title),
		}); err != nil {
			return domain.Delegation{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Delegation{}, err
	}
	return e.Repo.GetDelegation(ctx, delegationID)
}

// DeclineDelegation rejects the offer; ownership does not move and later
// sweeps may propose the same candidate again.
func (e Engine) DeclineDelegation(ctx context.Context, delegationID, userID string) (domain.Delegation, error) {
	d, err := e.Repo.GetDelegation(ctx, delegationID)
	if err != nil {
		return domain.Delegation{}, err
	}
	if d.ToUserID != userID {
		return domain.Delegation{}, ErrNotAuthorized
	}
	if d.Status != domain.DelegationPending {
		return domain.Delegation{}, ErrAlreadyResolved
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Delegation{}, err
	}
	defer tx.Rollback()

	resolved, err := e.Repo.ResolveDelegation(ctx, tx, delegationID, domain.DelegationDeclined, nil)
	if err != nil {
		return domain.Delegation{}, err
	}
	if !resolved {
		return domain.Delegation{}, ErrAlreadyResolved
	}
	if d.Reason != domain.DelegationInactivity && d.FromUserID != nil {
		idea, err := e.Repo.GetIdea(ctx, d.IdeaID)
		if err != nil {
			return domain.Delegation{}, err
		}
		if err := e.Notify.Send(ctx, tx, notify.Message{
			UserID: *d.FromUserID,
			IdeaID: d.IdeaID,
			Type:   domain.NotifyDelegation,
			Title:  "Delegation declined",
			Body:   fmt.Sprintf("Your handover of %q was declined.", idea.Title),
		}); err != nil {
			return domain.Delegation{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Delegation{}, err
	}
	return e.Repo.GetDelegation(ctx, delegationID)
}
