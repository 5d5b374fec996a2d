package engine

import (
	"context"

	"ideaforge/internal/domain"
)

// TopContributor picks the delegation candidate for an idea. An accepted
// collaborator takes precedence outright; otherwise engagement is scored
// from the activity log with configured weights. excludeUserID (the current
// owner) never wins. Ties break toward whoever engaged first, which the
// insertion-ordered activity log makes deterministic.
func (e Engine) TopContributor(ctx context.Context, ideaID, excludeUserID string) (string, bool, error) {
	collaborators, err := e.Repo.ListAcceptedCollaborators(ctx, ideaID)
	if err != nil {
		return "", false, err
	}
	for _, userID := range collaborators {
		if userID != excludeUserID {
			return userID, true, nil
		}
	}

	activities, err := e.Repo.ListActivities(ctx, ideaID)
	if err != nil {
		return "", false, err
	}
	scores := map[string]int{}
	var order []string
	for _, a := range activities {
		if a.UserID == excludeUserID {
			continue
		}
		w := 0
		switch a.Type {
		case domain.ActivityLike:
			w = e.Config.Ranking.LikeWeight
		case domain.ActivityComment:
			w = e.Config.Ranking.CommentWeight
		}
		if w == 0 {
			continue
		}
		if _, seen := scores[a.UserID]; !seen {
			order = append(order, a.UserID)
		}
		scores[a.UserID] += w
	}
	best := ""
	bestScore := 0
	for _, userID := range order {
		if scores[userID] > bestScore {
			best = userID
			bestScore = scores[userID]
		}
	}
	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}
