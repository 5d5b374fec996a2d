package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ideaforge/internal/domain"
)

func TestNewRedisBus(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	bus, err := NewRedisBus("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisBus failed: %v", err)
	}
	defer bus.Close()
}

func TestNewRedisBusBadURL(t *testing.T) {
	if _, err := NewRedisBus("not-a-url", ""); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestPublishDeliversNotification(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	bus := NewRedisBusWithClient(client, "test-channel")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "test-channel")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := domain.Notification{
		ID:        "n-1",
		UserID:    "user-1",
		Type:      domain.NotifyStatusChange,
		Title:     "Idea promoted",
		Message:   "Your idea advanced.",
		CreatedAt: "2024-01-01T00:00:00Z",
	}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var got domain.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.ID != want.ID || got.UserID != want.UserID || got.Type != want.Type {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
