// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seedfourtytwo/telegramshell/lib/testutil"
)

// pollRecorder scripts getUpdates responses per call and records the
// offsets the watcher acknowledged with. Calls beyond the script block
// until the request is cancelled, like a real long poll with no
// traffic.
type pollRecorder struct {
	script []string

	mu      sync.Mutex
	offsets []int64
	times   []time.Time
}

func (p *pollRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Offset int64 `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	index := len(p.offsets)
	p.offsets = append(p.offsets, request.Offset)
	p.times = append(p.times, time.Now())
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if index < len(p.script) {
		io.WriteString(w, p.script[index])
		return
	}
	<-r.Context().Done()
	io.WriteString(w, `{"ok":true,"result":[]}`)
}

func (p *pollRecorder) snapshotOffsets() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.offsets...)
}

func (p *pollRecorder) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.offsets)
}

func newWatcherFixture(t *testing.T, recorder *pollRecorder) *UpdateWatcher {
	t.Helper()
	server := httptest.NewServer(recorder)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		APIBaseURL: server.URL,
		Token:      mustToken(t),
		HTTPClient: server.Client(),
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}

	watcher, err := NewUpdateWatcher(WatcherConfig{
		Client:      client,
		PollTimeout: time.Second,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("building watcher: %v", err)
	}
	return watcher
}

func TestNewUpdateWatcherRequiresClient(t *testing.T) {
	if _, err := NewUpdateWatcher(WatcherConfig{}); err == nil {
		t.Fatal("NewUpdateWatcher accepted a missing client")
	}
}

func TestWatcherDeliversInOrderAndAcknowledges(t *testing.T) {
	recorder := &pollRecorder{script: []string{
		`{"ok":true,"result":[
			{"update_id":3,"message":{"message_id":1,"chat":{"id":7},"text":"ls"}},
			{"update_id":4,"message":{"message_id":2,"chat":{"id":7},"text":"df"}}]}`,
		`{"ok":true,"result":[
			{"update_id":5,"message":{"message_id":3,"chat":{"id":7},"text":"free"}}]}`,
	}}
	watcher := newWatcherFixture(t, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	runResult := make(chan error, 1)
	go func() { runResult <- watcher.Run(ctx) }()

	var got []int64
	for i := 0; i < 3; i++ {
		update := testutil.RequireReceive(t, watcher.Updates(), 5*time.Second, "waiting for update")
		got = append(got, update.UpdateID)
	}
	if got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Errorf("update ids = %v, want [3 4 5]", got)
	}

	cancel()
	if err := testutil.RequireReceive(t, runResult, 5*time.Second, "waiting for Run"); err != nil {
		t.Errorf("Run returned %v on clean shutdown", err)
	}

	select {
	case _, ok := <-watcher.Updates():
		if ok {
			t.Error("unexpected extra update after shutdown")
		}
	case <-time.After(5 * time.Second):
		t.Error("updates channel not closed after Run returned")
	}

	offsets := recorder.snapshotOffsets()
	if len(offsets) < 3 || offsets[0] != 0 || offsets[1] != 5 || offsets[2] != 6 {
		t.Errorf("acknowledged offsets = %v, want [0 5 6 ...]", offsets)
	}
}

func TestWatcherFailsAfterConsecutiveErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"ok":false,"error_code":500,"description":"boom"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		APIBaseURL: server.URL,
		Token:      mustToken(t),
		HTTPClient: server.Client(),
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	watcher, err := NewUpdateWatcher(WatcherConfig{Client: client, Logger: testLogger()})
	if err != nil {
		t.Fatalf("building watcher: %v", err)
	}

	err = watcher.Run(context.Background())
	if err == nil {
		t.Fatal("Run should fail after consecutive poll errors")
	}
	if !strings.Contains(err.Error(), "consecutive") {
		t.Errorf("error %q should report the consecutive failures", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 500 {
		t.Errorf("error chain should carry the API error, got %v", err)
	}
}

func TestWatcherHonorsFloodControl(t *testing.T) {
	recorder := &pollRecorder{script: []string{
		`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`,
	}}
	watcher := newWatcherFixture(t, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	runResult := make(chan error, 1)
	go func() { runResult <- watcher.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for recorder.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never retried after flood control")
		}
		time.Sleep(5 * time.Millisecond)
	}

	recorder.mu.Lock()
	wait := recorder.times[1].Sub(recorder.times[0])
	recorder.mu.Unlock()
	if wait < time.Second {
		t.Errorf("retry happened after %v, want at least the 1s retry-after", wait)
	}

	cancel()
	if err := testutil.RequireReceive(t, runResult, 5*time.Second, "waiting for Run"); err != nil {
		t.Errorf("Run returned %v on clean shutdown", err)
	}
}
