package rules_test

import (
	"testing"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/rules"
)

func idea(status domain.Status, likes int) domain.Idea {
	return domain.Idea{ID: "idea-1", Status: status, LikesCount: likes}
}

func TestEvaluateZeroUsersNeverFires(t *testing.T) {
	cfg := config.Default()
	if d := rules.Evaluate(idea(domain.StatusIdea, 50), 0, cfg); d != nil {
		t.Fatalf("expected nil decision with zero users, got %+v", d)
	}
}

func TestEvaluateThresholdConjunction(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		name   string
		status domain.Status
		likes  int
		users  int
		want   domain.Status
		fires  bool
	}{
		{"ratio below threshold", domain.StatusIdea, 5, 17, "", false}, // 29.4% < 30%
		{"ratio exactly at threshold", domain.StatusIdea, 6, 20, domain.StatusPreDraft, true}, // 30%
		{"ratio met but under minimum likes", domain.StatusIdea, 3, 10, "", false},
		{"minimum met but ratio short", domain.StatusIdea, 5, 100, "", false},
		{"both conditions met", domain.StatusIdea, 30, 100, domain.StatusPreDraft, true},
		{"pre-draft rule", domain.StatusPreDraft, 10, 25, domain.StatusDraft, true}, // 40%
		{"draft rule", domain.StatusDraft, 15, 30, domain.StatusCommit, true},       // 50%
		{"no rule for commit", domain.StatusCommit, 99, 100, "", false},
		{"no rule for archive", domain.StatusArchive, 99, 100, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := rules.Evaluate(idea(tc.status, tc.likes), tc.users, cfg)
			if !tc.fires {
				if d != nil {
					t.Fatalf("expected no decision, got %+v", d)
				}
				return
			}
			if d == nil {
				t.Fatalf("expected decision, got nil")
			}
			if d.ToStatus != tc.want {
				t.Fatalf("to status = %s, want %s", d.ToStatus, tc.want)
			}
			if d.FromStatus != tc.status {
				t.Fatalf("from status = %s, want %s", d.FromStatus, tc.status)
			}
		})
	}
}

func TestDecisionTriggerData(t *testing.T) {
	cfg := config.Default()
	d := rules.Evaluate(idea(domain.StatusIdea, 6), 20, cfg)
	if d == nil {
		t.Fatal("expected decision")
	}
	data := d.TriggerData()
	if data["likes_count"] != 6 || data["total_users"] != 20 {
		t.Fatalf("unexpected trigger data %+v", data)
	}
	if data["like_ratio_percentage"].(float64) != 30 {
		t.Fatalf("ratio = %v, want 30", data["like_ratio_percentage"])
	}
}
