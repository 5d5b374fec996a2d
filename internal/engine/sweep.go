package engine

import (
	"context"
	"fmt"

	"ideaforge/internal/domain"
)

// SweepResult summarizes one sweep pass. Success is true only when every
// idea was processed without error; partial progress still counts.
type SweepResult struct {
	Checked     int      `json:"checked"`
	Promotions  int      `json:"promotions"`
	Delegations int      `json:"delegations"`
	Errors      []string `json:"errors,omitempty"`
	Success     bool     `json:"success"`
}

// RunSweep walks every idea in an auto-progressable or delegation-eligible
// status, applies the promotion rules, then the inactivity check. One
// failing idea never stops the pass; its error is collected and the sweep
// moves on.
func (e Engine) RunSweep(ctx context.Context) (SweepResult, error) {
	statuses := e.Config.AutoStatuses()
	for _, s := range e.Config.Delegation.EligibleStatuses {
		seen := false
		for _, existing := range statuses {
			if existing == s {
				seen = true
				break
			}
		}
		if !seen {
			statuses = append(statuses, s)
		}
	}
	ideas, err := e.Repo.ListIdeasByStatuses(ctx, statuses)
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Success: true}
	for _, idea := range ideas {
		res.Checked++
		promoted, err := e.CheckIdea(ctx, idea.ID, domain.TriggerAutoProgression, "")
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("idea %s: promotion: %v", idea.ID, err))
			res.Success = false
			continue
		}
		if promoted {
			res.Promotions++
			// The idea now sits in a new status; re-read before the
			// delegation check.
			reloaded, err := e.Repo.GetIdea(ctx, idea.ID)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("idea %s: reload: %v", idea.ID, err))
				res.Success = false
				continue
			}
			idea = reloaded
		}
		d, err := e.CheckInactivity(ctx, idea)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("idea %s: delegation: %v", idea.ID, err))
			res.Success = false
			continue
		}
		if d != nil {
			res.Delegations++
		}
	}
	return res, nil
}
