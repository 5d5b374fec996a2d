// Package rules evaluates the like-ratio promotion table. It is pure: no
// store access, so decisions are trivially testable.
package rules

import (
	"ideaforge/internal/config"
	"ideaforge/internal/domain"
)

// Decision is a positive promotion verdict with the figures that produced
// it, recorded verbatim into the progression audit trail.
type Decision struct {
	FromStatus   domain.Status
	ToStatus     domain.Status
	LikesCount   int
	TotalUsers   int
	Ratio        float64
	ThresholdPct float64
	MinimumLikes int
}

// Evaluate returns the promotion an idea has earned, or nil when no rule
// fires. A rule fires only when both the ratio threshold and the absolute
// minimum hold. With zero registered users the ratio is undefined and
// nothing ever fires.
func Evaluate(idea domain.Idea, totalUsers int, cfg *config.Config) *Decision {
	if totalUsers <= 0 {
		return nil
	}
	rule, ok := cfg.RuleFor(idea.Status)
	if !ok {
		return nil
	}
	ratio := float64(idea.LikesCount) / float64(totalUsers) * 100
	if ratio < rule.ThresholdPct || idea.LikesCount < rule.MinimumLikes {
		return nil
	}
	return &Decision{
		FromStatus:   rule.FromStatus,
		ToStatus:     rule.ToStatus,
		LikesCount:   idea.LikesCount,
		TotalUsers:   totalUsers,
		Ratio:        ratio,
		ThresholdPct: rule.ThresholdPct,
		MinimumLikes: rule.MinimumLikes,
	}
}

// TriggerData flattens a decision for the progression audit record.
func (d *Decision) TriggerData() map[string]any {
	return map[string]any{
		"likes_count":               d.LikesCount,
		"total_users":               d.TotalUsers,
		"like_ratio_percentage":     d.Ratio,
		"like_threshold_percentage": d.ThresholdPct,
		"minimum_likes":             d.MinimumLikes,
	}
}
