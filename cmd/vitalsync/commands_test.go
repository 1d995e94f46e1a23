package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/vitalsync/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			if resp == "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// run executes the CLI against ts and returns everything the command wrote.
func (ts *testServer) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	oldClient := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer func() {
		newAPIClient = oldClient
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

func (ts *testServer) body(t *testing.T, i int) map[string]any {
	t.Helper()
	if len(ts.requests) <= i {
		t.Fatalf("expected at least %d requests, got %d", i+1, len(ts.requests))
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[i].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	return body
}

var ctx = context.Background()

func TestVitalsAdd_BloodPressure(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /vitals": `{"id":4,"type":"bloodPressure","value":118,"secondaryValue":76,"unit":"mmHg","recordedDate":"2025-07-08","source":"cli","syncStatus":"pending"}`,
	})

	if _, err := ts.run(t, "vitals", "add", "bloodPressure", "118", "76", "--date", "2025-07-08"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/vitals" {
		t.Errorf("request = %s %s, want POST /vitals", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	body := ts.body(t, 0)
	if body["type"] != "bloodPressure" {
		t.Errorf("body.type = %v, want bloodPressure", body["type"])
	}
	if body["value"] != 118.0 || body["secondaryValue"] != 76.0 {
		t.Errorf("body values = %v/%v, want 118/76", body["value"], body["secondaryValue"])
	}
	if body["recordedDate"] != "2025-07-08" {
		t.Errorf("body.recordedDate = %v, want 2025-07-08", body["recordedDate"])
	}
	if body["source"] != "cli" {
		t.Errorf("body.source = %v, want cli", body["source"])
	}
}

func TestVitalsAdd_InvalidValue(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := ts.run(t, "vitals", "add", "steps", "lots")
	if err == nil {
		t.Fatal("expected error for non-numeric value")
	}
	if !strings.Contains(err.Error(), "invalid value") {
		t.Errorf("error = %q, want it to mention 'invalid value'", err.Error())
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestVitalsAdd_MissingArgs(t *testing.T) {
	ts := newTestServer(t, nil)

	if _, err := ts.run(t, "vitals", "add", "steps"); err == nil {
		t.Fatal("expected error for missing value")
	}
}

func TestVitalsList_Filters(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /vitals": `[{"id":1,"type":"steps","value":8123,"unit":"steps","recordedDate":"2025-07-08","source":"manual","syncStatus":"synced"}]`,
	})

	out, err := ts.run(t, "vitals", "list", "--type", "steps", "--from", "2025-07-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := ts.requests[0].Path; got != "/vitals?from=2025-07-01&type=steps" {
		t.Errorf("path = %q", got)
	}
	if !strings.Contains(out, "8123 steps") || !strings.Contains(out, "synced") {
		t.Errorf("output missing row:\n%s", out)
	}
}

func TestVitalsDelete(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /vitals/5": "",
	})

	if _, err := ts.run(t, "vitals", "delete", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Method != "DELETE" {
		t.Errorf("method = %q, want DELETE", ts.requests[0].Method)
	}

	if _, err := ts.run(t, "vitals", "delete", "five"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if len(ts.requests) != 1 {
		t.Errorf("expected 1 request, got %d", len(ts.requests))
	}
}

func TestVitalsDelete_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := ts.run(t, "vitals", "delete", "99")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404: not found") {
		t.Errorf("error = %q, want unwrapped API message", err.Error())
	}
}

func TestTargetsListAndSet(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /targets":        `[{"type":"steps","value":10000,"unit":"steps"},{"type":"weight","value":70,"unit":"kg"}]`,
		"PUT /targets/weight": `{"type":"weight","value":68.5,"unit":"kg"}`,
	})
	defer func() { noColor = false }()

	out, err := ts.run(t, "--no-color", "targets", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "steps = 10000 steps") || !strings.Contains(out, "weight = 70 kg") {
		t.Errorf("output = %q", out)
	}

	if _, err := ts.run(t, "targets", "set", "weight", "68.5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 1); body["value"] != 68.5 {
		t.Errorf("body.value = %v, want 68.5", body["value"])
	}
}

func TestSyncRun(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sync": `{"uploaded":2,"applied":1,"conflicts":{"detected":1,"resolved":0,"pending":1},"durationMs":40,"warning":"conflicts awaiting resolution"}`,
	})

	out, err := ts.run(t, "--no-color", "sync", "run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { noColor = false }()
	if ts.requests[0].Path != "/sync" {
		t.Errorf("path = %q, want /sync", ts.requests[0].Path)
	}
	for _, want := range []string{"Sync finished in 40ms", "Uploaded: 2", "1 detected, 0 resolved, 1 pending", "conflicts awaiting resolution"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSyncRun_Offline(t *testing.T) {
	ts := &testServer{server: httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"network unavailable","type":"network_error"}}`))
	}))}
	defer ts.server.Close()

	_, err := ts.run(t, "sync", "run")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "network unavailable") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestSyncConflictsAndResolve(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sync/conflicts":               `[{"id":"7_r1","type":"weight","recordedDate":"2025-07-08","local":{"id":7,"type":"weight","value":71.2},"remote":{"id":"r1","type":"weight","value":70.9}}]`,
		"POST /sync/conflicts/7_r1/resolve": `{"id":"7_r1","choice":"remote"}`,
	})

	out, err := ts.run(t, "sync", "conflicts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "7_r1") || !strings.Contains(out, "70.9") {
		t.Errorf("output missing conflict:\n%s", out)
	}

	if _, err := ts.run(t, "sync", "resolve", "7_r1", "remote"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 1); body["choice"] != "remote" {
		t.Errorf("body.choice = %v, want remote", body["choice"])
	}
}

func TestSyncResolve_RejectsUnknownChoice(t *testing.T) {
	ts := newTestServer(t, nil)

	if _, err := ts.run(t, "sync", "resolve", "7_r1", "both"); err == nil {
		t.Fatal("expected error for unknown choice")
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestSyncStrategy(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sync/strategy": `{"strategy":"remote_wins"}`,
		"PUT /sync/strategy": `{"strategy":"manual"}`,
	})

	out, err := ts.run(t, "sync", "strategy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "remote_wins" {
		t.Errorf("output = %q, want remote_wins", out)
	}

	if _, err := ts.run(t, "sync", "strategy", "manual"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 1); body["strategy"] != "manual" {
		t.Errorf("body.strategy = %v, want manual", body["strategy"])
	}

	if _, err := ts.run(t, "sync", "strategy", "coinflip"); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if len(ts.requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(ts.requests))
	}
}

func TestSyncAuto(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sync/auto": `{"enabled":true}`,
		"PUT /sync/auto": `{"enabled":false}`,
	})

	out, err := ts.run(t, "sync", "auto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "on" {
		t.Errorf("output = %q, want on", out)
	}

	if _, err := ts.run(t, "sync", "auto", "off"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 1); body["enabled"] != false {
		t.Errorf("body.enabled = %v, want false", body["enabled"])
	}

	if _, err := ts.run(t, "sync", "auto", "sometimes"); err == nil {
		t.Error("expected error for an argument other than on or off")
	}
	if len(ts.requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(ts.requests))
	}
}

func TestCacheCommands(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /cache/stats":    `{"totalSize":2048,"entryCount":3,"mostAccessed":{"key":"targets","count":12}}`,
		"POST /cache/cleanup": `{"removed":2}`,
		"DELETE /cache":       "",
	})

	for _, args := range [][]string{
		{"cache", "stats"},
		{"cache", "cleanup"},
		{"cache", "clear"},
	} {
		if _, err := ts.run(t, args...); err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
	}

	want := []string{"GET /cache/stats", "POST /cache/cleanup", "DELETE /cache"}
	for i, w := range want {
		if got := ts.requests[i].Method + " " + ts.requests[i].Path; got != w {
			t.Errorf("request %d = %q, want %q", i, got, w)
		}
	}
}

func TestOfflineListAndDrain(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /offline":        `[{"id":"q1","method":"POST","url":"/notes","priority":"medium","retryCount":0,"status":"pending"}]`,
		"POST /offline/drain": `{"replayed":1,"failed":0,"stopped":false}`,
	})

	out, err := ts.run(t, "offline", "list", "--status", "pending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Path != "/offline?status=pending" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
	if !strings.Contains(out, "/notes") || !strings.Contains(out, "medium") {
		t.Errorf("output missing request:\n%s", out)
	}
	if usage := offlineListCmd.Flags().Lookup("status").Usage; !strings.Contains(usage, "done") {
		t.Errorf("status flag usage = %q", usage)
	}

	if _, err := ts.run(t, "offline", "drain"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecurityCommands(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /security/unlock": `{"state":"unlocked"}`,
		"POST /security/lock":   `{"state":"locked"}`,
		"GET /security/check":   `{"isSecure":false,"issues":["biometric authentication unavailable"]}`,
		"GET /security/logs":    `[{"id":2,"event":"session_unlocked","timestamp":"2025-07-08T10:00:00Z","success":true}]`,
	})

	if _, err := ts.run(t, "security", "unlock", "--reason", "checking numbers"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if body := ts.body(t, 0); body["reason"] != "checking numbers" {
		t.Errorf("body.reason = %v", body["reason"])
	}

	if _, err := ts.run(t, "security", "lock"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := ts.run(t, "security", "check"); err != nil {
		t.Fatalf("check: %v", err)
	}

	out, err := ts.run(t, "security", "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if ts.requests[3].Path != "/security/logs?limit=20" {
		t.Errorf("path = %q", ts.requests[3].Path)
	}
	if !strings.Contains(out, "session_unlocked") {
		t.Errorf("output missing event:\n%s", out)
	}
}

func TestSecurityExportImport(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /security/export": `{"blob":"c2VhbGVk","vitals":3}`,
		"POST /security/import": `{"imported":3,"skipped":0,"targets":6}`,
	})
	path := filepath.Join(t.TempDir(), "vitals.backup")

	if _, err := ts.run(t, "security", "export"); err == nil {
		t.Fatal("expected error without --password")
	}

	if _, err := ts.run(t, "security", "export", "--password", "pw", "--out", path); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if strings.TrimSpace(string(data)) != "c2VhbGVk" {
		t.Errorf("backup = %q", data)
	}

	if _, err := ts.run(t, "security", "import", path, "--password", "pw"); err != nil {
		t.Fatalf("import: %v", err)
	}
	body := ts.body(t, 1)
	if body["blob"] != "c2VhbGVk" || body["password"] != "pw" {
		t.Errorf("import body = %v", body)
	}
}

func TestDecodeJSON_ErrorWithoutEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer ts.Close()

	c := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	resp, err := c.get(ctx, "/sync/status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, nil)
	if err == nil || !strings.Contains(err.Error(), "502: upstream down") {
		t.Errorf("error = %v", err)
	}
}

func TestClient_ServerNotReachable(t *testing.T) {
	c := &apiClient{baseURL: "http://127.0.0.1:1", token: "t", httpClient: http.DefaultClient}
	_, err := c.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "is vitalsync running") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		n    int64
		noun string
		want string
	}{
		{1, "request", "1 request"},
		{3, "request", "3 requests"},
		{0, "expired entry", "0 expired entries"},
		{1, "expired entry", "1 expired entry"},
	}
	for _, tt := range tests {
		if got := countLabel(tt.n, tt.noun); got != tt.want {
			t.Errorf("countLabel(%d, %q) = %q, want %q", tt.n, tt.noun, got, tt.want)
		}
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Remote.APIToken = "secret"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		if k.Key == "remote.api_token" && k.Value != "(set)" {
			t.Errorf("remote.api_token shown as %q", k.Value)
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}
