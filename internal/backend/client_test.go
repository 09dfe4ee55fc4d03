package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reminderd/internal/clock"
	"reminderd/internal/reminder"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestNotifySendsUpdate(t *testing.T) {
	var got Update
	var auth, method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, auth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/"}, staticToken("tok"), WithClock(clock.NewFake(now)))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	due := now.Add(10 * time.Minute)
	err = c.Notify(context.Background(), Update{TodoID: "X", Action: ActionSnooze, NewTime: &due, Priority: reminder.PriorityHigh, Title: "t"})
	if err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if method != http.MethodPut || path != "/api/todos/X/reminder" || auth != "Bearer tok" {
		t.Fatalf("request = %s %s auth %q", method, path, auth)
	}
	if got.TodoID != "X" || got.Action != ActionSnooze || got.NewTime == nil || !got.NewTime.Equal(due) || got.CompletedAt != nil {
		t.Fatalf("body = %+v", got)
	}
}

func TestNotifyNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	defer srv.Close()
	c, _ := New(Config{BaseURL: srv.URL}, staticToken("tok"), WithHTTPClient(srv.Client()))
	err := c.Notify(context.Background(), Update{TodoID: "X", Action: ActionComplete})
	if !errors.Is(err, reminder.ErrBackendSync) {
		t.Fatalf("err = %v, want ErrBackendSync", err)
	}
}

func TestExpiredTokenFailsWithoutRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	c, _ := New(Config{BaseURL: srv.URL}, staticToken(signed(t, now.Add(-time.Minute))), WithClock(clock.NewFake(now)))
	err := c.Notify(context.Background(), Update{TodoID: "X", Action: ActionComplete})
	if !errors.Is(err, ErrTokenExpired) || !errors.Is(err, reminder.ErrBackendSync) {
		t.Fatalf("err = %v, want ErrTokenExpired wrapped in ErrBackendSync", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("server hit %d times", hits.Load())
	}
}

func TestCheckExpiry(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"opaque", "abc123", false},
		{"valid jwt", signed(t, now.Add(time.Hour)), false},
		{"expired jwt", signed(t, now.Add(-time.Hour)), true},
		{"dotted garbage", "a.b.c", false},
	}
	for _, tt := range tests {
		if err := CheckExpiry(tt.token, now); (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_TOKEN", "")

	jsonPath := filepath.Join(dir, "token.json")
	if err := SaveToken(jsonPath, " abc "); err != nil {
		t.Fatalf("SaveToken error: %v", err)
	}
	if tok, err := (Credentials{Path: jsonPath, Env: "TEST_TOKEN"}).Token(); err != nil || tok != "abc" {
		t.Fatalf("json token = %q, %v", tok, err)
	}

	rawPath := filepath.Join(dir, "token.txt")
	_ = os.WriteFile(rawPath, []byte("raw-token\n"), 0o600)
	if tok, _ := (Credentials{Path: rawPath, Env: "TEST_TOKEN"}).Token(); tok != "raw-token" {
		t.Fatalf("raw token = %q", tok)
	}

	if _, err := (Credentials{Path: filepath.Join(dir, "missing"), Env: "TEST_TOKEN"}).Token(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("missing file err = %v, want ErrNoToken", err)
	}

	t.Setenv("TEST_TOKEN", "from-env")
	if tok, _ := (Credentials{Path: rawPath, Env: "TEST_TOKEN"}).Token(); tok != "from-env" {
		t.Fatalf("env token = %q", tok)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "not a url"}, nil); err == nil {
		t.Fatalf("New accepted invalid base url")
	}
}
