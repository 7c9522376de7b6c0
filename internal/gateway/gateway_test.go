package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KafClaw/sheetclaw/internal/agent"
	"github.com/KafClaw/sheetclaw/internal/approval"
	"github.com/KafClaw/sheetclaw/internal/grid"
	"github.com/KafClaw/sheetclaw/internal/provider"
	"github.com/KafClaw/sheetclaw/internal/tables"
	"github.com/KafClaw/sheetclaw/internal/threads"
	"github.com/KafClaw/sheetclaw/internal/tools"
)

type scriptedProvider struct {
	responses []provider.ChatResponse
	err       error
	calls     int
}

func (p *scriptedProvider) ChatStream(_ context.Context, _ *provider.ChatRequest) (provider.Stream, error) {
	idx := p.calls
	p.calls++
	if p.err != nil && idx >= len(p.responses) {
		return nil, p.err
	}
	resp := provider.ChatResponse{Content: "ok"}
	if idx < len(p.responses) {
		resp = p.responses[idx]
	}
	return provider.NewResponseStream(&resp), nil
}

func (p *scriptedProvider) DefaultModel() string { return "mock-model" }

type testServer struct {
	srv    *httptest.Server
	store  *threads.Store
	ledger *approval.Ledger
	cache  *tables.Cache
	llm    *scriptedProvider
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	dir := t.TempDir()
	sheet := grid.NewStore(filepath.Join(dir, "example.xlsx"))
	if err := sheet.Seed(false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store, err := threads.Open("", filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ts := &testServer{
		store:  store,
		ledger: approval.NewLedger(0, nil),
		cache:  tables.NewCache(),
		llm:    &scriptedProvider{},
	}
	registry := tools.NewRegistry()
	tools.RegisterDefaults(registry, sheet, store, ts.ledger, ts.cache.Delete)
	loop := agent.NewLoop(agent.LoopOptions{
		Provider: ts.llm,
		Registry: registry,
		Ledger:   ts.ledger,
		Threads:  store,
		Tables:   ts.cache,
	})
	ts.srv = httptest.NewServer(NewRouter(Options{
		Loop:      loop,
		Threads:   store,
		Ledger:    ts.ledger,
		Tables:    ts.cache,
		Sheet:     sheet,
		AuthToken: token,
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "secret")
	resp := ts.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "ok" || body["workbook"] != "ok" {
		t.Errorf("unexpected health %v", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestBearerAuth(t *testing.T) {
	ts := newTestServer(t, "secret")
	if resp := ts.do(t, http.MethodGet, "/api/threads", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/threads", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestChatStreamsNDJSON(t *testing.T) {
	ts := newTestServer(t, "")
	ts.llm.responses = []provider.ChatResponse{{Content: "Hello!"}}

	resp := ts.do(t, http.MethodPost, "/api/chat", `{"threadId":"t1","messages":[{"id":"m1","role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("unexpected content type %q", ct)
	}

	var events []agent.Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var ev agent.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 || events[0].Type != agent.EventText || events[1].Type != agent.EventFinish {
		t.Fatalf("unexpected events %+v", events)
	}
	last := events[1]
	if last.ThreadID != "t1" || last.Text != "Hello!" || last.MessageID == "" {
		t.Errorf("unexpected finish event %+v", last)
	}

	msgs, _ := ts.store.ListMessages(context.Background(), "t1")
	if len(msgs) != 2 {
		t.Errorf("expected user and assistant messages, got %d", len(msgs))
	}
}

func TestChatFailureBeforeStreaming(t *testing.T) {
	ts := newTestServer(t, "")
	ts.llm.err = errors.New("upstream unavailable")

	resp := ts.do(t, http.MethodPost, "/api/chat", `{"threadId":"t1","messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["error"] != "Internal Server Error" || !strings.Contains(body["details"], "upstream unavailable") {
		t.Errorf("unexpected error body %v", body)
	}
}

func TestChatFailureAfterStreamingNamesThread(t *testing.T) {
	ts := newTestServer(t, "")
	ts.llm.responses = []provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "readSheet", Arguments: map[string]any{"range": "A1"}}}},
	}
	ts.llm.err = errors.New("upstream unavailable")

	resp := ts.do(t, http.MethodPost, "/api/chat", `{"messages":[{"id":"m1","role":"user","content":"read A1"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 once streaming started, got %d", resp.StatusCode)
	}
	var last agent.Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var ev agent.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		last = ev
	}
	if last.Type != agent.EventError || !strings.Contains(last.Error, "upstream unavailable") {
		t.Fatalf("expected trailing error event, got %+v", last)
	}
	if last.ThreadID != "m1" {
		t.Errorf("expected error event for thread m1, got %q", last.ThreadID)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, "")
	for _, body := range []string{`{`, `{"messages":[]}`, `{"messages":[{"role":"assistant","content":"x"}]}`} {
		if resp := ts.do(t, http.MethodPost, "/api/chat", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestThreadLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	resp := ts.do(t, http.MethodPost, "/api/threads", `{"message":"Summarize the amounts column for me please"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created threads.Thread
	decode(t, resp, &created)
	if created.Title != "Summarize the amounts column f" {
		t.Errorf("unexpected title %q", created.Title)
	}

	if resp := ts.do(t, http.MethodPost, "/api/threads", ""); resp.StatusCode != http.StatusCreated {
		t.Fatalf("empty create: expected 201, got %d", resp.StatusCode)
	}

	content, _ := tables.AppendMarker("Here you go.", [][]any{{"Email"}, {"alice@example.com"}})
	if _, err := ts.store.AppendMessage(ctx, threads.Message{ID: "a1", ThreadID: created.ID, Role: "assistant", Content: content}); err != nil {
		t.Fatal(err)
	}

	var list struct {
		Threads []threads.Thread `json:"threads"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/threads", ""), &list)
	if len(list.Threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(list.Threads))
	}

	var detail struct {
		Thread   threads.Thread `json:"thread"`
		Messages []messageView  `json:"messages"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/threads/"+created.ID, ""), &detail)
	if len(detail.Messages) != 1 || detail.Messages[0].Content != "Here you go." || len(detail.Messages[0].Table) != 2 {
		t.Errorf("unexpected thread detail %+v", detail)
	}

	var table struct {
		Table  [][]any `json:"table"`
		Source string  `json:"source"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/threads/"+created.ID+"/table", ""), &table)
	if table.Source != "history" || len(table.Table) != 2 {
		t.Errorf("expected table rebuilt from history, got %+v", table)
	}
	if _, ok := ts.cache.Get(created.ID); !ok {
		t.Error("expected reconstructed table to be cached")
	}

	ts.ledger.Store(created.ID, "Delete thread", "?", approval.ToolDeleteThread, nil)
	if resp := ts.do(t, http.MethodDelete, "/api/threads/"+created.ID, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	if len(ts.ledger.Pending(created.ID)) != 0 {
		t.Error("expected ledger entries to be cleared")
	}
	if _, ok := ts.cache.Get(created.ID); ok {
		t.Error("expected cached table to be dropped")
	}
	if resp := ts.do(t, http.MethodGet, "/api/threads/"+created.ID, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodDelete, "/api/threads/"+created.ID, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodGet, "/api/threads/"+created.ID+"/table", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing table, got %d", resp.StatusCode)
	}
}

func TestConfirmationRoutes(t *testing.T) {
	ts := newTestServer(t, "")
	ts.ledger.Store("t1", "Update cell", "Write x to A1?", approval.ToolWriteCell, map[string]any{"cell": "A1", "value": "x"})

	var list struct {
		Confirmations []approval.PendingConfirmation `json:"confirmations"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/threads/t1/confirmations", ""), &list)
	if len(list.Confirmations) != 1 || list.Confirmations[0].Approved {
		t.Fatalf("unexpected confirmations %+v", list.Confirmations)
	}

	resp := ts.do(t, http.MethodPost, "/api/threads/t1/confirmations/writeCell/approve", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", resp.StatusCode)
	}
	var approved approval.PendingConfirmation
	decode(t, resp, &approved)
	if !approved.Approved {
		t.Error("expected approved entry")
	}

	if resp := ts.do(t, http.MethodPost, "/api/threads/t1/confirmations/readSheet/approve", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for ungated tool, got %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodPost, "/api/threads/t1/confirmations/writeRange/approve", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 without entry, got %d", resp.StatusCode)
	}

	if resp := ts.do(t, http.MethodPost, "/api/threads/t1/confirmations/writeCell/decline", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("decline: expected 200, got %d", resp.StatusCode)
	}
	if _, ok := ts.ledger.Get("t1", approval.ToolWriteCell); ok {
		t.Error("expected entry to be removed on decline")
	}
}

func TestSheetRoute(t *testing.T) {
	ts := newTestServer(t, "")
	var body struct {
		Range string  `json:"range"`
		Rows  [][]any `json:"rows"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/sheet?range=a1:b1", ""), &body)
	if body.Range != "A1:B1" || len(body.Rows) != 1 || body.Rows[0][0] != "Email" || body.Rows[0][1] != "Name" {
		t.Errorf("unexpected sheet body %+v", body)
	}
	if resp := ts.do(t, http.MethodGet, "/api/sheet?range=A1:B2:C3", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad range, got %d", resp.StatusCode)
	}
}

func TestRequestIDAndTokenMismatch(t *testing.T) {
	ts := newTestServer(t, "secret")

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected incoming request id echoed, got %q", got)
	}

	for _, header := range []string{"Bearer secre", "Bearer secret2", "secret", "bearer secret"} {
		req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/threads", nil)
		req.Header.Set("Authorization", header)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Authorization %q: expected 401, got %d", header, resp.StatusCode)
		}
	}
}
