package heartbeat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edouard/botwire/internal/botapi"
)

// --- Test doubles ---

type fakeInfo struct {
	mu    sync.Mutex
	infos []*botapi.WebhookInfo
	err   error
	calls int
}

// GetWebhookInfo returns the queued infos in order, repeating the last one.
func (f *fakeInfo) GetWebhookInfo(ctx context.Context) (*botapi.WebhookInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls - 1
	if i >= len(f.infos) {
		i = len(f.infos) - 1
	}
	return f.infos[i], nil
}

func (f *fakeInfo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sentMsg struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent []sentMsg
	errs map[int64]error // per-chatID errors
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, sentMsg{chatID, text})
	if err, ok := f.errs[chatID]; ok {
		return err
	}
	return nil
}

// --- Helpers ---

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func freezeTime(t *testing.T) {
	t.Helper()
	orig := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = orig })
}

func errorAt(ago time.Duration, msg string) *botapi.WebhookInfo {
	return &botapi.WebhookInfo{
		URL:              "https://bot.example.com/webhook",
		LastErrorDate:    fixedNow.Add(-ago).Unix(),
		LastErrorMessage: msg,
	}
}

// --- Tests ---

func TestNewExecutor(t *testing.T) {
	info := &fakeInfo{}
	s := &fakeSender{}
	e := NewExecutor(info, s, []int64{111, 222}, 50)

	if e.info != info {
		t.Error("expected info source to be set")
	}
	if e.sender != s {
		t.Error("expected sender to be set")
	}
	if len(e.ownerIDs) != 2 || e.ownerIDs[0] != 111 || e.ownerIDs[1] != 222 {
		t.Errorf("expected ownerIDs [111, 222], got %v", e.ownerIDs)
	}
	if e.maxPending != 50 {
		t.Errorf("maxPending = %d, want 50", e.maxPending)
	}
}

func TestExecute_Healthy(t *testing.T) {
	freezeTime(t)
	s := &fakeSender{}
	e := NewExecutor(&fakeInfo{infos: []*botapi.WebhookInfo{{URL: "https://x", PendingUpdateCount: 3}}}, s, []int64{42}, 10)

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("expected no alert, got %+v", s.sent)
	}
}

func TestExecute_DeliveryErrorAlertedOnce(t *testing.T) {
	freezeTime(t)
	s := &fakeSender{}
	info := &fakeInfo{infos: []*botapi.WebhookInfo{
		errorAt(time.Minute, "Connection refused"),
		errorAt(time.Minute, "Connection refused"),
		errorAt(0, "Wrong response from the webhook: 502 Bad Gateway"),
	}}
	e := NewExecutor(info, s, []int64{42, 99}, 0)

	for i := 0; i < 3; i++ {
		if err := e.Execute(context.Background()); err != nil {
			t.Fatalf("Execute #%d: %v", i, err)
		}
	}

	if len(s.sent) != 4 {
		t.Fatalf("expected 4 sends (2 errors x 2 owners), got %d: %+v", len(s.sent), s.sent)
	}
	if s.sent[0].chatID != 42 || s.sent[1].chatID != 99 {
		t.Errorf("alert recipients = %d, %d", s.sent[0].chatID, s.sent[1].chatID)
	}
	if !strings.Contains(s.sent[0].text, "Connection refused") || !strings.Contains(s.sent[0].text, "2026-03-01T11:59:00Z") {
		t.Errorf("first alert = %q", s.sent[0].text)
	}
	if !strings.Contains(s.sent[2].text, "502 Bad Gateway") {
		t.Errorf("second alert = %q", s.sent[2].text)
	}
}

func TestExecute_StaleErrorIsBaseline(t *testing.T) {
	freezeTime(t)
	s := &fakeSender{}
	info := &fakeInfo{infos: []*botapi.WebhookInfo{
		errorAt(48*time.Hour, "old failure"),
		errorAt(48*time.Hour, "old failure"),
	}}
	e := NewExecutor(info, s, []int64{42}, 0)

	for i := 0; i < 2; i++ {
		if err := e.Execute(context.Background()); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if len(s.sent) != 0 {
		t.Fatalf("stale error should not alert, got %+v", s.sent)
	}
}

func TestExecute_Backlog(t *testing.T) {
	freezeTime(t)
	s := &fakeSender{}
	info := &fakeInfo{infos: []*botapi.WebhookInfo{
		{PendingUpdateCount: 150},
		{PendingUpdateCount: 200},
		{PendingUpdateCount: 5},
		{PendingUpdateCount: 101},
	}}
	e := NewExecutor(info, s, []int64{42}, 100)

	for i := 0; i < 4; i++ {
		if err := e.Execute(context.Background()); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	if len(s.sent) != 2 {
		t.Fatalf("expected 2 backlog alerts, got %+v", s.sent)
	}
	if s.sent[0].text != "Webhook backlog: 150 pending updates (limit 100)" {
		t.Errorf("first alert = %q", s.sent[0].text)
	}
	if s.sent[1].text != "Webhook backlog: 101 pending updates (limit 100)" {
		t.Errorf("second alert = %q", s.sent[1].text)
	}
}

func TestExecute_BacklogDisabled(t *testing.T) {
	freezeTime(t)
	s := &fakeSender{}
	e := NewExecutor(&fakeInfo{infos: []*botapi.WebhookInfo{{PendingUpdateCount: 10000}}}, s, []int64{42}, 0)

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("expected no alert, got %+v", s.sent)
	}
}

func TestExecute_InfoError(t *testing.T) {
	s := &fakeSender{}
	e := NewExecutor(&fakeInfo{err: errors.New("network down")}, s, []int64{42}, 1)

	err := e.Execute(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "heartbeat: webhook info") || !strings.Contains(err.Error(), "network down") {
		t.Errorf("unexpected error: %v", err)
	}
	if len(s.sent) != 0 {
		t.Errorf("expected 0 sends, got %d", len(s.sent))
	}
}

func TestExecute_SenderErrorContinues(t *testing.T) {
	freezeTime(t)
	s := &fakeSender{errs: map[int64]error{42: errors.New("blocked by user")}}
	e := NewExecutor(&fakeInfo{infos: []*botapi.WebhookInfo{errorAt(0, "boom")}}, s, []int64{42, 99}, 0)

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("sender errors should not fail Execute: %v", err)
	}
	if len(s.sent) != 2 || s.sent[1].chatID != 99 {
		t.Fatalf("expected both owners to be tried, got %+v", s.sent)
	}
}

func TestExecute_NoOwners(t *testing.T) {
	freezeTime(t)
	s := &fakeSender{}
	e := NewExecutor(&fakeInfo{infos: []*botapi.WebhookInfo{errorAt(0, "boom")}}, s, nil, 0)

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("expected no sends, got %+v", s.sent)
	}
}

func TestSenderFunc(t *testing.T) {
	var got sentMsg
	f := SenderFunc(func(ctx context.Context, chatID int64, text string) error {
		got = sentMsg{chatID, text}
		return nil
	})
	if err := f.Send(context.Background(), 7, "hi"); err != nil {
		t.Fatal(err)
	}
	if got != (sentMsg{7, "hi"}) {
		t.Fatalf("got %+v", got)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	info := &fakeInfo{infos: []*botapi.WebhookInfo{{}}}
	e := NewExecutor(info, &fakeSender{}, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for info.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 checks, got %d", info.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
