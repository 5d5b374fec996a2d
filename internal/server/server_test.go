package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asUser(userID string) map[string]string {
	return map[string]string{"X-User-Id": userID}
}

func createUser(t *testing.T, srv *testServer, wallet string) domain.User {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"wallet_address": wallet,
	}, asUser("bootstrap"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user: %d %s", res.StatusCode, string(data))
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	return u
}

func TestRequiresAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/ideas", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", res.StatusCode)
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": "user-42",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("unmarshal token: %v (%s)", err, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.UserID != "user-42" || who.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", who)
	}
}

func TestIdeaPromotionOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	users := make([]domain.User, 0, 10)
	for i := 0; i < 10; i++ {
		users = append(users, createUser(t, srv, "0xwallet"+string(rune('a'+i))))
	}
	owner := users[0]

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/ideas", map[string]any{
		"title":  "Solar benches",
		"target": "Commuters",
		"why":    "Phones die",
		"what":   "Benches that charge",
		"how":    "Panels",
		"impact": "Happier commuters",
	}, asUser(owner.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create idea: %d %s", res.StatusCode, string(data))
	}
	var idea domain.Idea
	if err := json.Unmarshal(data, &idea); err != nil {
		t.Fatalf("unmarshal idea: %v", err)
	}
	if idea.Status != domain.StatusIdea {
		t.Fatalf("new idea status = %s", idea.Status)
	}

	// 5 of 10 users liking is 50%, past the 30% threshold with the
	// 5-like minimum met, so the inline check promotes.
	var last LikeResponse
	for _, u := range users[1:6] {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/ideas/"+idea.ID+"/like", nil, asUser(u.ID))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("like: %d %s", res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &last); err != nil {
			t.Fatalf("unmarshal like: %v", err)
		}
	}
	if last.Idea.Status != domain.StatusPreDraft {
		t.Fatalf("status after likes = %s, want pre-draft", last.Idea.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/ideas/"+idea.ID+"/history", nil, asUser(owner.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, string(data))
	}
	var hist []domain.Progression
	if err := json.Unmarshal(data, &hist); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	found := false
	for _, p := range hist {
		if p.ToStatus == domain.StatusPreDraft && p.TriggerType == domain.TriggerLikeThreshold {
			found = true
		}
	}
	if !found {
		t.Fatalf("no LIKE_THRESHOLD progression in %+v", hist)
	}

	// The owner was told.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me/notifications/unread-count", nil, asUser(owner.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unread count: %d %s", res.StatusCode, string(data))
	}
	var unread UnreadCountResponse
	if err := json.Unmarshal(data, &unread); err != nil {
		t.Fatalf("unmarshal count: %v", err)
	}
	if unread.Unread == 0 {
		t.Fatal("owner should have an unread promotion notification")
	}
}

func TestDelegationFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	owner := createUser(t, srv, "0xowner")
	target := createUser(t, srv, "0xtarget")
	stranger := createUser(t, srv, "0xstranger")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/ideas", map[string]any{
		"title": "Tool library", "target": "Makers", "why": "w", "what": "w", "how": "h", "impact": "i",
	}, asUser(owner.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create idea: %d %s", res.StatusCode, string(data))
	}
	var idea domain.Idea
	_ = json.Unmarshal(data, &idea)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/ideas/"+idea.ID+"/delegations", map[string]any{
		"to_user_id": target.ID,
	}, asUser(owner.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("delegate: %d %s", res.StatusCode, string(data))
	}
	var d domain.Delegation
	_ = json.Unmarshal(data, &d)

	// Only one pending delegation per idea.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/ideas/"+idea.ID+"/delegations", map[string]any{
		"to_user_id": stranger.ID,
	}, asUser(owner.ID))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second delegation: %d %s, want 409", res.StatusCode, string(data))
	}

	// Only the addressee may accept.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/delegations/"+d.ID+"/accept", nil, asUser(stranger.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger accept: %d %s, want 403", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/delegations/"+d.ID+"/accept", nil, asUser(target.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/ideas/"+idea.ID, nil, asUser(target.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get idea: %d %s", res.StatusCode, string(data))
	}
	var after domain.Idea
	_ = json.Unmarshal(data, &after)
	if after.OwnerUserID == nil || *after.OwnerUserID != target.ID {
		t.Fatalf("owner = %v, want %s", after.OwnerUserID, target.ID)
	}

	// Accepting twice conflicts.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/delegations/"+d.ID+"/accept", nil, asUser(target.ID))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("double accept: %d %s, want 409", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	u := createUser(t, srv, "0xkeyed")
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{
		"name": "ci",
	}, asUser(u.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil || key.Key == "" {
		t.Fatalf("unmarshal key: %v (%s)", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.UserID != u.ID || who.Source != "api_key" {
		t.Fatalf("unexpected principal %+v", who)
	}
}
