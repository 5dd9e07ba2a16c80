package pyload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pyloadwatch/internal/domain"
	"pyloadwatch/internal/log"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "admin", "secret", log.Null(), opts...)
	return client, srv
}

func TestLoginSendsFormCredentials(t *testing.T) {
	var gotUser, gotPass string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotUser = r.PostFormValue("username")
		gotPass = r.PostFormValue("password")
		w.Write([]byte(`true`))
	}))

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if gotUser != "admin" || gotPass != "secret" {
		t.Errorf("credentials not transmitted: %q/%q", gotUser, gotPass)
	}
}

func TestLoginRejectedPayload(t *testing.T) {
	for _, body := range []string{`false`, `null`} {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(body))
		}))

		err := client.Login(context.Background())
		if domain.KindOf(err) != domain.ErrKindLogin {
			t.Errorf("body %s: expected login-failed, got %v", body, err)
		}
	}
}

func TestCallErrorTaxonomy(t *testing.T) {
	t.Run("forbidden maps to login failure", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		err := client.ServerStatus(context.Background())
		if domain.KindOf(err) != domain.ErrKindLogin {
			t.Errorf("expected login-failed, got %v", err)
		}
		if !domain.IsAuthFailure(err) {
			t.Errorf("403 should count as an auth failure")
		}
	})

	t.Run("5xx maps to server error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		err := client.ServerStatus(context.Background())
		if domain.KindOf(err) != domain.ErrKindServer {
			t.Errorf("expected server-error, got %v", err)
		}
	})

	t.Run("unreachable server maps to connection error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // port is now dead
		client := NewClient(srv.URL, "admin", "secret", log.Null())
		err := client.ServerStatus(context.Background())
		if domain.KindOf(err) != domain.ErrKindConnection {
			t.Errorf("expected connection-error, got %v", err)
		}
	})

	t.Run("invalid JSON maps to request error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`<html>not json</html>`))
		}))
		err := client.ServerStatus(context.Background())
		if domain.KindOf(err) != domain.ErrKindRequest {
			t.Errorf("expected request-failed, got %v", err)
		}
	})

	t.Run("payload error marker maps to request error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"error": "package not found"}`))
		}))
		err := client.ServerStatus(context.Background())
		if domain.KindOf(err) != domain.ErrKindRequest {
			t.Errorf("expected request-failed, got %v", err)
		}
	})
}

func TestCallTimeout(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}), WithTimeout(50*time.Millisecond))

	start := time.Now()
	err := client.ServerStatus(context.Background())
	if domain.KindOf(err) != domain.ErrKindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout did not fire promptly, took %v", elapsed)
	}
}

func TestActiveListingSummaryFallback(t *testing.T) {
	var queueCalls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/statusDownloads":
			w.Write([]byte(`{"total": 2, "active": 2, "speed": 1024}`))
		case "/api/getQueueData":
			queueCalls++
			w.Write([]byte(`[{"id": 1, "name": "from-queue", "status": 12}]`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	tasks, err := client.ActiveListing(context.Background())
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if queueCalls != 1 {
		t.Fatalf("summary with activity should trigger exactly one queue fetch, got %d", queueCalls)
	}
	if len(tasks) != 1 || tasks[0].Name != "from-queue" {
		t.Errorf("queue rows not recovered: %+v", tasks)
	}
}

func TestActiveListingIdleSummaryIsEmpty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/getQueueData" {
			t.Errorf("idle summary must not trigger a queue fetch")
		}
		w.Write([]byte(`{"total": 0, "active": 0, "speed": 0}`))
	}))

	tasks, err := client.ActiveListing(context.Background())
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestAddPackageFirstAttemptWins(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostFormValue("name"); got != `"movie.mkv"` {
			t.Errorf("first attempt should send the JSON-quoted name, got %q", got)
		}
		if got := r.PostFormValue("links"); got != `["http://host/movie.mkv"]` {
			t.Errorf("links should be a JSON array, got %q", got)
		}
		w.Write([]byte(`17`))
	}))

	id, err := client.AddPackage(context.Background(), "movie.mkv", "http://host/movie.mkv")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("success should stop the attempt sequence, got %d calls", calls)
	}
	if id != "17" {
		t.Errorf("expected package id 17, got %q", id)
	}
}

func TestAddPackageFallsThroughEncodings(t *testing.T) {
	var names []string
	var dests []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		names = append(names, r.PostFormValue("name"))
		dests = append(dests, r.PostFormValue("dest"))
		if len(names) < 3 {
			w.Write([]byte(`{"error": "invalid arguments"}`))
			return
		}
		w.Write([]byte(`"pid-9"`))
	}))

	id, err := client.AddPackage(context.Background(), "file.zip", "http://host/file.zip")
	if err != nil {
		t.Fatalf("add failed after fallbacks: %v", err)
	}
	if id != "pid-9" {
		t.Errorf("expected pid-9, got %q", id)
	}

	want := []string{`"file.zip"`, `file.zip`, `file.zip`}
	if len(names) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("attempt %d name: got %q, want %q", i+1, names[i], want[i])
		}
	}
	if dests[0] != "" || dests[1] != "" || dests[2] != "1" {
		t.Errorf("destination parameter should appear from the third attempt on: %v", dests)
	}
}

func TestAddPackageStopsOnAuthFailure(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.AddPackage(context.Background(), "x", "http://host/x")
	if domain.KindOf(err) != domain.ErrKindLogin {
		t.Fatalf("expected login-failed, got %v", err)
	}
	if calls != 1 {
		t.Errorf("auth failure should abort the sequence, got %d calls", calls)
	}
}

func TestAddPackageExhaustedReturnsLastError(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{"error": "still no"}`))
	}))

	_, err := client.AddPackage(context.Background(), "x", "http://host/x")
	if err == nil {
		t.Fatalf("expected an error after all attempts")
	}
	if calls != 4 {
		t.Errorf("expected all 4 encodings to be tried, got %d calls", calls)
	}
	if domain.KindOf(err) != domain.ErrKindRequest {
		t.Errorf("expected the last request error, got %v", err)
	}
}

func TestSpeedLimitRoundTrip(t *testing.T) {
	var setValue string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		switch r.URL.Path {
		case "/api/getConfigValue":
			if r.PostFormValue("option") != `"limit_speed"` {
				t.Errorf("option should be JSON-quoted, got %q", r.PostFormValue("option"))
			}
			w.Write([]byte(`"True"`))
		case "/api/setConfigValue":
			setValue = r.PostFormValue("value")
			w.Write([]byte(`null`))
		}
	}))

	enabled, err := client.SpeedLimit(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !enabled {
		t.Errorf("quoted True string should coerce to enabled")
	}

	if err := client.SetSpeedLimit(context.Background(), false); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if setValue != `"false"` {
		t.Errorf("value should be transmitted JSON-quoted, got %q", setValue)
	}
}
