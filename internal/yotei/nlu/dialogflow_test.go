package nlu_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akatsune/yotei/common/retry"
	"github.com/akatsune/yotei/internal/yotei/nlu"
)

const sampleResponse = `{
	"result": {
		"action": "meeting.add",
		"actionIncomplete": false,
		"metadata": {"intentName": "meeting:add"},
		"fulfillment": {"speech": "Schedule a meeting?"},
		"parameters": {
			"subject": ["standup"],
			"time": "10:00:00",
			"date": "2024-05-01"
		}
	}
}`

// quickRetry keeps test retries fast.
var quickRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestClassify_Success(t *testing.T) {
	var gotAuth, gotVersion string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.URL.Query().Get("v")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p := nlu.New(nlu.Config{
		AccessToken: "secret-token",
		BaseURL:     srv.URL,
		Retry:       quickRetry,
	})

	raw, err := p.Classify(context.Background(), nlu.Query{
		Text:      "schedule the standup",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotVersion != "20150910" {
		t.Errorf("protocol version = %q", gotVersion)
	}
	if gotBody["query"] != "schedule the standup" || gotBody["sessionId"] != "session-1" {
		t.Errorf("unexpected request body %v", gotBody)
	}
	if gotBody["lang"] != "en" {
		t.Errorf("language should default to en, got %q", gotBody["lang"])
	}
	if raw.Result.Metadata.IntentName != "meeting:add" {
		t.Errorf("intentName = %q", raw.Result.Metadata.IntentName)
	}
	if raw.Result.Parameters.Time != "10:00:00" {
		t.Errorf("time = %q", raw.Result.Parameters.Time)
	}
}

func TestClassify_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p := nlu.New(nlu.Config{BaseURL: srv.URL, Retry: quickRetry})

	raw, err := p.Classify(context.Background(), nlu.Query{Text: "hi", SessionID: "s"})
	if err != nil {
		t.Fatalf("Classify should recover after transient 5xx: %v", err)
	}
	if raw == nil {
		t.Fatal("expected a response")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClassify_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := nlu.New(nlu.Config{BaseURL: srv.URL, Retry: quickRetry})

	_, err := p.Classify(context.Background(), nlu.Query{Text: "hi", SessionID: "s"})
	if !errors.Is(err, nlu.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClassify_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := nlu.New(nlu.Config{BaseURL: srv.URL, Retry: quickRetry})

	_, err := p.Classify(context.Background(), nlu.Query{Text: "hi", SessionID: "s"})
	if !errors.Is(err, nlu.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", got)
	}
}

func TestClassify_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p := nlu.New(nlu.Config{
		BaseURL: srv.URL,
		Timeout: 20 * time.Millisecond,
		Retry:   retry.Config{MaxAttempts: 1},
	})

	_, err := p.Classify(context.Background(), nlu.Query{Text: "hi", SessionID: "s"})
	if !errors.Is(err, nlu.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestClassify_MalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"result": `))
	}))
	defer srv.Close()

	p := nlu.New(nlu.Config{BaseURL: srv.URL, Retry: quickRetry})

	_, err := p.Classify(context.Background(), nlu.Query{Text: "hi", SessionID: "s"})
	if !errors.Is(err, nlu.ErrMalformedClassification) {
		t.Fatalf("expected ErrMalformedClassification, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("a malformed body must not be retried, got %d attempts", got)
	}
}

func TestClassify_QueryLanguageOverride(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotLang = body["lang"]
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p := nlu.New(nlu.Config{BaseURL: srv.URL, Language: "en", Retry: quickRetry})

	if _, err := p.Classify(context.Background(), nlu.Query{Text: "hoi", SessionID: "s", Language: "nl"}); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if gotLang != "nl" {
		t.Errorf("per-query language should win, got %q", gotLang)
	}
}
