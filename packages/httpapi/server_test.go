package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"repochat/packages/ai"
	"repochat/packages/config"
	"repochat/packages/fetcher"
	"repochat/types"
)

type stubLoader struct {
	contents   *fetcher.RepoContents
	err        error
	lastSource types.RepoSource
}

func (s *stubLoader) Fetch(ctx context.Context, source types.RepoSource) (*fetcher.RepoContents, error) {
	s.lastSource = source
	if s.err != nil {
		return nil, s.err
	}
	return s.contents, nil
}

type stubAsker struct {
	answer      string
	err         error
	lastContext string
	lastLabel   string
	lastHistory []types.ChatTurn
}

func (s *stubAsker) Ask(ctx context.Context, contextText, contextLabel string, history []types.ChatTurn, question string) (string, error) {
	s.lastContext = contextText
	s.lastLabel = contextLabel
	s.lastHistory = history
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func widgetsContents() *fetcher.RepoContents {
	return &fetcher.RepoContents{
		Owner:  "acme",
		Repo:   "widgets",
		Branch: "main",
		Files: []types.FileEntry{
			{Path: "a.py", Content: "print(1)", Language: "python"},
			{Path: "b.py", Content: "print(2)", Language: "python"},
		},
	}
}

type testClient struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
}

func newTestClient(t *testing.T, loader Loader, asker Asker) *testClient {
	t.Helper()
	srv := NewServer(config.ServerConfig{SessionTTLHours: 1, SessionCookie: "repochat_session"}, loader, asker)
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testClient{t: t, server: server, client: &http.Client{Jar: jar}}
}

func (c *testClient) post(path string, payload any) (int, map[string]any) {
	c.t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal payload: %v", err)
	}
	resp, err := c.client.Post(c.server.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	result := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result
}

func (c *testClient) get(path string) (int, map[string]any) {
	c.t.Helper()
	resp, err := c.client.Get(c.server.URL + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	result := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result
}

func TestLoadAndAskFlow(t *testing.T) {
	loader := &stubLoader{contents: widgetsContents()}
	asker := &stubAsker{answer: "it prints numbers"}
	c := newTestClient(t, loader, asker)

	status, body := c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets", "token": "pat"})
	if status != http.StatusOK {
		t.Fatalf("load status = %d, body %v", status, body)
	}
	if loader.lastSource.Token != "pat" {
		t.Errorf("token not forwarded to loader: %+v", loader.lastSource)
	}
	files, _ := body["files"].([]any)
	if len(files) != 2 {
		t.Fatalf("load returned %d files, want 2: %v", len(files), body)
	}

	status, body = c.post("/api/ask", map[string]string{"question": "what does it do?"})
	if status != http.StatusOK {
		t.Fatalf("ask status = %d, body %v", status, body)
	}
	if body["answer"] != "it prints numbers" {
		t.Errorf("answer = %v", body["answer"])
	}
	if !strings.Contains(asker.lastContext, "print(1)") || !strings.Contains(asker.lastContext, "print(2)") {
		t.Errorf("asker did not receive whole-repo context: %q", asker.lastContext)
	}
	if !strings.Contains(asker.lastLabel, "full codebase") {
		t.Errorf("context label wrong: %q", asker.lastLabel)
	}
	if len(asker.lastHistory) != 0 {
		t.Errorf("first question carried history: %+v", asker.lastHistory)
	}

	status, body = c.get("/api/history")
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	turns, _ := body["turns"].([]any)
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2: %v", len(turns), body)
	}
	first, _ := turns[0].(map[string]any)
	second, _ := turns[1].(map[string]any)
	if first["role"] != "user" || second["role"] != "model" {
		t.Errorf("turn roles wrong: %v", turns)
	}

	// A second question replays the stored history.
	if status, _ = c.post("/api/ask", map[string]string{"question": "and then?"}); status != http.StatusOK {
		t.Fatalf("second ask status = %d", status)
	}
	if len(asker.lastHistory) != 2 {
		t.Errorf("second question carried %d history turns, want 2", len(asker.lastHistory))
	}
}

func TestSelectSingleFile(t *testing.T) {
	loader := &stubLoader{contents: widgetsContents()}
	asker := &stubAsker{answer: "prints two"}
	c := newTestClient(t, loader, asker)

	c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})
	status, body := c.post("/api/select", map[string]string{"path": "b.py"})
	if status != http.StatusOK {
		t.Fatalf("select status = %d, body %v", status, body)
	}
	if body["selected_path"] != "b.py" {
		t.Errorf("selected_path = %v", body["selected_path"])
	}

	if status, _ := c.post("/api/ask", map[string]string{"question": "what?"}); status != http.StatusOK {
		t.Fatalf("ask status = %d", status)
	}
	if !strings.Contains(asker.lastContext, "print(2)") || strings.Contains(asker.lastContext, "print(1)") {
		t.Errorf("asker did not receive single-file context: %q", asker.lastContext)
	}
	if !strings.Contains(asker.lastLabel, "b.py") {
		t.Errorf("context label should name the file: %q", asker.lastLabel)
	}
}

func TestSelectUnknownFile(t *testing.T) {
	c := newTestClient(t, &stubLoader{contents: widgetsContents()}, &stubAsker{})
	c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})
	status, body := c.post("/api/select", map[string]string{"path": "missing.py"})
	if status != http.StatusNotFound {
		t.Fatalf("select status = %d, body %v", status, body)
	}
}

func TestLoadInvalidURL(t *testing.T) {
	loader := &stubLoader{err: fmt.Errorf("%w: %q", fetcher.ErrInvalidURL, "nope")}
	c := newTestClient(t, loader, &stubAsker{})
	status, body := c.post("/api/load", map[string]string{"url": "nope"})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "invalid GitHub URL") {
		t.Errorf("error message = %q", msg)
	}
}

func TestLoadNotFoundKeepsSessionEmpty(t *testing.T) {
	loader := &stubLoader{err: fmt.Errorf("%w: Not Found", fetcher.ErrNotFound)}
	c := newTestClient(t, loader, &stubAsker{})
	status, body := c.post("/api/load", map[string]string{"url": "https://github.com/doesnotexist/repo"})
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "not found") {
		t.Errorf("error message = %q", msg)
	}

	// The failed load must not leave a repository in the session.
	if _, snapshot := c.get("/api/session"); snapshot["loaded"] == true {
		t.Error("failed load stored repository state")
	}
}

func TestRateLimitedLoad(t *testing.T) {
	loader := &stubLoader{err: fmt.Errorf("%w (resets later)", fetcher.ErrRateLimited)}
	c := newTestClient(t, loader, &stubAsker{})
	status, body := c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, body %v", status, body)
	}
}

func TestAskContextTooLarge(t *testing.T) {
	asker := &stubAsker{err: fmt.Errorf("%w: prompt is 2000000 characters", ai.ErrContextTooLarge)}
	c := newTestClient(t, &stubLoader{contents: widgetsContents()}, asker)
	c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})

	status, body := c.post("/api/ask", map[string]string{"question": "explain everything"})
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body %v", status, body)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "select a single file") {
		t.Errorf("context-too-large guidance missing: %q", msg)
	}

	// The failed exchange must not be recorded in the transcript.
	if _, history := c.get("/api/history"); len(history["turns"].([]any)) != 0 {
		t.Error("failed ask appended turns to the transcript")
	}
}

func TestAskWithoutRepository(t *testing.T) {
	c := newTestClient(t, &stubLoader{}, &stubAsker{answer: "hi"})
	status, body := c.post("/api/ask", map[string]string{"question": "anything loaded?"})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "no repository loaded") {
		t.Errorf("error message = %q", msg)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	c := newTestClient(t, &stubLoader{contents: widgetsContents()}, &stubAsker{})
	c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})
	if status, _ := c.post("/api/ask", map[string]string{"question": "   "}); status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
}

func TestChatDisabledWithoutAsker(t *testing.T) {
	c := newTestClient(t, &stubLoader{contents: widgetsContents()}, nil)
	c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})
	status, body := c.post("/api/ask", map[string]string{"question": "hello?"})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "chat is disabled") {
		t.Errorf("error message = %q", msg)
	}
}

func TestResetClearsEverything(t *testing.T) {
	c := newTestClient(t, &stubLoader{contents: widgetsContents()}, &stubAsker{answer: "ok"})
	c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})
	c.post("/api/ask", map[string]string{"question": "q"})

	if status, _ := c.post("/api/reset", map[string]string{}); status != http.StatusOK {
		t.Fatalf("reset failed")
	}
	if _, snapshot := c.get("/api/session"); snapshot["loaded"] == true {
		t.Error("repository survived reset")
	}
	if _, history := c.get("/api/history"); len(history["turns"].([]any)) != 0 {
		t.Error("transcript survived reset")
	}
}

func TestSessionCookieIsReused(t *testing.T) {
	c := newTestClient(t, &stubLoader{contents: widgetsContents()}, &stubAsker{})
	c.post("/api/load", map[string]string{"url": "https://github.com/acme/widgets"})
	// Same client, same cookie: the loaded repository is still there.
	if _, snapshot := c.get("/api/session"); snapshot["loaded"] != true {
		t.Error("session state not shared across requests with the same cookie")
	}
}

func TestIndexServed(t *testing.T) {
	c := newTestClient(t, &stubLoader{}, nil)
	resp, err := c.client.Get(c.server.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("index content type = %q", ct)
	}
}
