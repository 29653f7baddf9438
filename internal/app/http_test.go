package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"qdamono/server/internal/auth"
	"qdamono/server/internal/authpw"
	"qdamono/server/internal/projects"
	"qdamono/server/internal/session"
	"qdamono/server/internal/store"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	server *HTTPServer
	store  *store.MemoryStore
	repo   *projects.Repository
}

func newTestEnv(t *testing.T, sessions fakePinger) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	repo := projects.NewRepository(st)
	gate := auth.NewGate("test-secret", time.Hour, session.NewMemoryStore())
	svc := New(st, sessions, gate, authpw.NewService(st.Users()), repo)

	realtime := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return &testEnv{
		server: NewHTTPServer(svc, realtime, metrics, "*", zap.NewNop()),
		store:  st,
		repo:   repo,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Header().Get("Content-Type") == "application/json" && rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, payload
}

// signIn registers an account and returns its access token and user id.
func (e *testEnv) signIn(t *testing.T, email string) (string, string) {
	t.Helper()
	rr, _ := e.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"email":"`+email+`","password":"correct horse","displayName":"Ada"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rr.Code, rr.Body.String())
	}
	rr, payload := e.do(t, http.MethodPost, "/api/auth/signin", "",
		`{"email":"`+email+`","password":"correct horse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin status = %d body=%s", rr.Code, rr.Body.String())
	}
	token, _ := payload["token"].(string)
	userID, _ := payload["userId"].(string)
	if token == "" || userID == "" {
		t.Fatalf("signin payload = %v", payload)
	}
	return token, userID
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	rr, payload := env.do(t, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload["ok"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	rr, payload := env.do(t, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK || payload["status"] != "ready" {
		t.Fatalf("ready = %d %v", rr.Code, payload)
	}

	env = newTestEnv(t, fakePinger{err: errors.New("connection refused")})
	rr, payload = env.do(t, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	checks := payload["checks"].(map[string]any)
	sessions := checks["sessions"].(map[string]any)
	if sessions["status"] != "error" || sessions["error"] != "connection refused" {
		t.Fatalf("sessions check = %v", sessions)
	}
	if database := checks["database"].(map[string]any); database["status"] != "ok" {
		t.Fatalf("database check = %v", database)
	}
}

func TestSignUpErrors(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	env.signIn(t, "ada@example.com")

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "duplicate email", body: `{"email":"ADA@example.com","password":"another one","displayName":"Other"}`, status: http.StatusConflict, code: "EMAIL_EXISTS"},
		{name: "short password", body: `{"email":"new@example.com","password":"short","displayName":"New"}`, status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR"},
		{name: "malformed body", body: `{`, status: http.StatusBadRequest, code: "INVALID_BODY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, payload := env.do(t, http.MethodPost, "/api/auth/signup", "", tc.body)
			if rr.Code != tc.status || payload["code"] != tc.code {
				t.Fatalf("signup = %d %v, want %d %s", rr.Code, payload, tc.status, tc.code)
			}
		})
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	env.signIn(t, "ada@example.com")

	rr, payload := env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"ada@example.com","password":"wrong password"}`)
	if rr.Code != http.StatusUnauthorized || payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("signin = %d %v", rr.Code, payload)
	}
}

func TestSessionAndLogout(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	token, userID := env.signIn(t, "ada@example.com")

	_, payload := env.do(t, http.MethodGet, "/api/session", token, "")
	if payload["authenticated"] != true || payload["userId"] != userID || payload["userName"] != "Ada" {
		t.Fatalf("session = %v", payload)
	}

	rr, _ := env.do(t, http.MethodPost, "/api/auth/logout", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d body=%s", rr.Code, rr.Body.String())
	}

	_, payload = env.do(t, http.MethodGet, "/api/session", token, "")
	if payload["authenticated"] != false {
		t.Fatalf("session after logout = %v", payload)
	}
	rr, _ = env.do(t, http.MethodGet, "/api/projects", token, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("projects after logout status = %d", rr.Code)
	}
}

func TestProjectRoutes(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	token, userID := env.signIn(t, "ada@example.com")
	ctx := context.Background()

	mine := store.Project{ID: "p1", Name: "Mine", TextFiles: []store.Link[store.TextFile]{
		store.Resolved(store.TextFile{ID: "tf1", Name: "a.txt"}),
	}}
	if err := env.repo.Create(ctx, mine, userID); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.repo.Create(ctx, store.Project{ID: "p2", Name: "Hidden"}, "someone-else"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.repo.Create(ctx, store.Project{ID: "p3", Name: "Open", IsPublic: true}, "someone-else"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rr, payload := env.do(t, http.MethodGet, "/api/projects", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	items := payload["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}

	rr, payload = env.do(t, http.MethodGet, "/api/projects/p1", token, "")
	if rr.Code != http.StatusOK || payload["privilege"] != "owner" {
		t.Fatalf("get = %d %v", rr.Code, payload)
	}
	files := payload["project"].(map[string]any)["text_files"].([]any)
	if file := files[0].(map[string]any); file["name"] != "a.txt" {
		t.Fatalf("text file = %v", file)
	}

	rr, _ = env.do(t, http.MethodGet, "/api/projects/p2", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("hidden project status = %d", rr.Code)
	}
	rr, _ = env.do(t, http.MethodGet, "/api/projects/nope", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing project status = %d", rr.Code)
	}

	rr, payload = env.do(t, http.MethodGet, "/api/project-privileges", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("privileges status = %d", rr.Code)
	}
	grants := payload["items"].([]any)
	if len(grants) != 1 {
		t.Fatalf("grants = %v", grants)
	}
	if grant := grants[0].(map[string]any); grant["project_id"] != "p1" || grant["privilege"] != "owner" {
		t.Fatalf("grant = %v", grant)
	}
	rr, payload = env.do(t, http.MethodGet, "/api/projects", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	for _, item := range payload["items"].([]any) {
		if project := item.(map[string]any); project["id"] == "p1" && project["privilege"] != grants[0].(map[string]any)["privilege"] {
			t.Fatalf("listing privilege = %v, grant privilege = %v", project["privilege"], grants[0])
		}
	}

	rr, _ = env.do(t, http.MethodGet, "/api/projects", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list status = %d", rr.Code)
	}
}

func TestDelegatedRoutes(t *testing.T) {
	env := newTestEnv(t, fakePinger{})

	rr, _ := env.do(t, http.MethodGet, "/ws", "", "")
	if rr.Code != http.StatusTeapot {
		t.Fatalf("/ws status = %d", rr.Code)
	}
	rr, _ = env.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics\n" {
		t.Fatalf("/metrics = %d %q", rr.Code, rr.Body.String())
	}
}
