package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type ipv4Server struct {
	URL string
	srv *http.Server
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return &ipv4Server{URL: "http://" + ln.Addr().String(), srv: srv}
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

// chatServer answers /chat/completions with statuses[i] on the i-th call
// (the last status repeats) and counts the calls.
func chatServer(t *testing.T, statuses []int, headers []http.Header, okBody any, calls *int32) *ipv4Server {
	t.Helper()
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(calls, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		if i < len(headers) {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		st := statuses[i]
		w.WriteHeader(st)
		if st >= 200 && st < 300 {
			_ = json.NewEncoder(w).Encode(okBody)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	}))
}

var okBody = GenerateResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: "ok"}}}}

func testRequest() GenerateRequest {
	return GenerateRequest{Model: "test-model", Messages: []Message{{Role: "user", Content: "hi"}}, MaxTokens: 1}
}

func TestGenerateSendsOpenAIPayload(t *testing.T) {
	var got GenerateRequest
	var auth string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("X-Request-Id", "req_1")
		_ = json.NewEncoder(w).Encode(okBody)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model:    "llama-3.1-8b-instant",
		Messages: []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if auth != "Bearer k" {
		t.Fatalf("authorization header = %q", auth)
	}
	if got.Model != "llama-3.1-8b-instant" || len(got.Messages) != 2 || got.Messages[1].Content != "u" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	content, err := resp.Content()
	if err != nil || content != "ok" {
		t.Fatalf("content = %q, %v", content, err)
	}
	if resp.RequestID != "req_1" {
		t.Fatalf("request id = %q", resp.RequestID)
	}
}

func TestGenerateMissingKeyMakesNoRequest(t *testing.T) {
	var calls int32
	srv := chatServer(t, []int{200}, nil, okBody, &calls)
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), testRequest())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no HTTP calls, got %d", calls)
	}
}

func TestGenerateSingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := chatServer(t, []int{503, 200}, nil, okBody, &calls)
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), testRequest())
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T %v", err, err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

func TestGenerateRetriesOn429(t *testing.T) {
	var calls int32
	srv := chatServer(t, []int{429, 200}, []http.Header{{"Retry-After": {"0"}}}, okBody, &calls)
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, RetryMax: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Generate(ctx, testRequest())
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	var calls int32
	srv := chatServer(t, []int{429, 200}, []http.Header{{"Retry-After": {"1"}}}, okBody, &calls)
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, HTTPTimeout: 5 * time.Second, RetryMax: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := c.Generate(ctx, testRequest()); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected at least ~1s delay due to Retry-After, got %v", elapsed)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	var calls int32
	srv := chatServer(t, []int{429}, []http.Header{{"Retry-After": {"5"}}}, okBody, &calls)
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, RetryMax: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, testRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestErrorIncludesRequestID(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, RetryMax: 3})
	_, err := c.Generate(context.Background(), testRequest())
	var br *BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "req_test_123") {
		t.Fatalf("expected request id in error, got: %v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	cases := []struct {
		status int
		code   string
		msg    string
		check  func(error) bool
	}{
		{401, "", "invalid api key", func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{403, "", "", func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{404, "model_not_found", "", func(err error) bool { var e *ModelNotFoundError; return errors.As(err, &e) }},
		{404, "", "route missing", func(err error) bool { var e *ModelNotFoundError; return !errors.As(err, &e) }},
		{402, "", "billing required", func(err error) bool { var e *QuotaExceededError; return errors.As(err, &e) }},
		{429, "quota_exceeded", "", func(err error) bool { var e *QuotaExceededError; return errors.As(err, &e) }},
		{502, "", "upstream", func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
	}
	for _, c := range cases {
		apiErr := &APIError{StatusCode: c.status, Code: c.code, Message: c.msg}
		err := classifyAPIError(apiErr, &http.Response{Header: http.Header{}})
		if !c.check(err) {
			t.Errorf("status %d code %q: unexpected classification %T", c.status, c.code, err)
		}
		var base *APIError
		if !errors.As(err, &base) || base.StatusCode != c.status {
			t.Errorf("status %d: APIError not reachable via errors.As", c.status)
		}
	}
}

func TestGenerateUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open listener: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := NewClient(ClientConfig{APIKey: "k", BaseURL: "http://" + addr, HTTPTimeout: time.Second})
	_, err = c.Generate(context.Background(), testRequest())
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T %v", err, err)
	}
}

func TestContentRejectsEmptyChoices(t *testing.T) {
	if _, err := (&GenerateResponse{}).Content(); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, err := parseRetryAfter("3"); err != nil || d != 3*time.Second {
		t.Fatalf("seconds: %v %v", d, err)
	}
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	if d, err := parseRetryAfter(future); err != nil || d <= 0 || d > 10*time.Second {
		t.Fatalf("http date: %v %v", d, err)
	}
	if _, err := parseRetryAfter("soon"); err == nil {
		t.Fatalf("expected error for invalid value")
	}
}
