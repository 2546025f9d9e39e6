package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/claworc/webssh/internal/transport"
)

// fakeClock is a controllable clock. Timers fire synchronously on Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*fakeTimer
	keep := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(now) {
			due = append(due, t)
		} else if !t.stopped {
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.stopped = true
		t.f()
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock, *transport.Memory) {
	t.Helper()
	clock := newFakeClock()
	e := NewEngine(WithClock(clock))
	mt := transport.NewMemory()
	e.Attach(mt)
	return e, clock, mt
}

func modal(id string) map[string]any {
	return map[string]any{"id": id, "type": "confirm", "title": "Continue?", "severity": "warning"}
}

func toast(id string) map[string]any {
	return map[string]any{"id": id, "type": "toast", "title": "Saved", "severity": "success"}
}

func ids(ps []Payload) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func responses(t *testing.T, mt *transport.Memory) []Response {
	t.Helper()
	var out []Response
	for _, m := range mt.EmittedNamed(EventResponse) {
		var r Response
		if err := json.Unmarshal(m.Data, &r); err != nil {
			t.Fatal(err)
		}
		out = append(out, r)
	}
	return out
}

func rejectReason(err error) RejectReason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

func TestEngine_AdmitsFivePerSecond(t *testing.T) {
	e, _, mt := newTestEngine(t)
	for i := 0; i < rateLimit; i++ {
		mt.Deliver(EventPrompt, toast(fmt.Sprintf("t%d", i)))
	}
	s := e.Snapshot()
	if len(s.Toasts) != rateLimit || s.Stats.RateLimited != 0 {
		t.Errorf("toasts=%d rateLimited=%d, want %d/0", len(s.Toasts), s.Stats.RateLimited, rateLimit)
	}
}

func TestEngine_WindowSlides(t *testing.T) {
	e, clock, _ := newTestEngine(t)
	for round := 0; round < 3; round++ {
		for i := 0; i < rateLimit; i++ {
			raw, _ := json.Marshal(toast(fmt.Sprintf("r%d-%d", round, i)))
			if err := e.Handle(raw); err != nil {
				t.Fatalf("round %d prompt %d: %v", round, i, err)
			}
		}
		clock.Advance(rateWindow + time.Millisecond)
	}
}

func TestEngine_SixthInWindowRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	for i := 0; i < rateLimit; i++ {
		raw, _ := json.Marshal(modal(fmt.Sprintf("m%d", i)))
		e.Handle(raw)
	}
	before := e.Snapshot()

	raw, _ := json.Marshal(modal("m5"))
	err := e.Handle(raw)
	if rejectReason(err) != RejectRateLimited {
		t.Fatalf("6th prompt error = %v, want rate_limited", err)
	}

	after := e.Snapshot()
	if after.Active.ID != before.Active.ID || !equal(ids(after.Queue), ids(before.Queue)) {
		t.Errorf("rejection changed state: before %v/%v after %v/%v",
			before.Active.ID, ids(before.Queue), after.Active.ID, ids(after.Queue))
	}
	if after.CircuitTripped {
		t.Error("breaker should not trip at 6")
	}
}

func TestEngine_RateLimitCountsAdmissionsOnly(t *testing.T) {
	e, clock, _ := newTestEngine(t)
	handle := func(id string) error {
		raw, _ := json.Marshal(toast(id))
		return e.Handle(raw)
	}

	for i := 0; i < rateLimit; i++ {
		if err := handle(fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("a%d: %v", i, err)
		}
	}
	clock.Advance(500 * time.Millisecond)
	for i := 0; i < 4; i++ {
		if rejectReason(handle(fmt.Sprintf("r%d", i))) != RejectRateLimited {
			t.Fatalf("r%d should be rate limited", i)
		}
	}

	// The first burst has left the window; the rejects do not count
	// against new admissions.
	clock.Advance(510 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if err := handle(fmt.Sprintf("b%d", i)); err != nil {
			t.Errorf("b%d: %v, want admitted", i, err)
		}
	}
	if e.Snapshot().CircuitTripped {
		t.Error("breaker should not trip")
	}
}

func TestEngine_CircuitBreakerTripsOnce(t *testing.T) {
	e, _, mt := newTestEngine(t)

	var errs []error
	for i := 0; i < 25; i++ {
		raw, _ := json.Marshal(toast(fmt.Sprintf("t%d", i)))
		errs = append(errs, e.Handle(raw))
	}

	if !e.Snapshot().CircuitTripped {
		t.Fatal("breaker should be tripped")
	}
	if n := mt.DisconnectCalls(); n != 1 {
		t.Errorf("transport disconnected %d times, want 1", n)
	}
	for i := circuitThreshold - 1; i < len(errs); i++ {
		if rejectReason(errs[i]) != RejectCircuitOpen {
			t.Errorf("prompt %d error = %v, want circuit_open", i, errs[i])
		}
	}
	for i := 0; i < rateLimit; i++ {
		if errs[i] != nil {
			t.Errorf("prompt %d error = %v, want admitted", i, errs[i])
		}
	}
}

func TestEngine_CircuitStaysOpenUntilAttach(t *testing.T) {
	e, clock, mt := newTestEngine(t)
	for i := 0; i < circuitThreshold; i++ {
		raw, _ := json.Marshal(toast(fmt.Sprintf("t%d", i)))
		e.Handle(raw)
	}
	clock.Advance(time.Minute)

	raw, _ := json.Marshal(toast("late"))
	if rejectReason(e.Handle(raw)) != RejectCircuitOpen {
		t.Error("breaker should stay open after the window passes")
	}
	if mt.DisconnectCalls() != 1 {
		t.Errorf("disconnects = %d, want 1", mt.DisconnectCalls())
	}

	fresh := transport.NewMemory()
	e.Attach(fresh)
	if e.Snapshot().CircuitTripped {
		t.Error("Attach should clear the breaker")
	}
	fresh.Deliver(EventPrompt, toast("after"))
	if len(e.Snapshot().Toasts) != 1 {
		t.Errorf("toasts = %v", ids(e.Snapshot().Toasts))
	}

	// The old transport's handler is detached.
	mt.Deliver(EventPrompt, toast("stale"))
	if len(e.Snapshot().Toasts) != 1 {
		t.Errorf("stale transport admitted a prompt: %v", ids(e.Snapshot().Toasts))
	}
}

func TestEngine_ModalQueueBounded(t *testing.T) {
	e, _, mt := newTestEngine(t)
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		mt.Deliver(EventPrompt, modal(id))
	}
	raw, _ := json.Marshal(modal("p5"))
	if rejectReason(e.Handle(raw)) != RejectQueueFull {
		t.Fatal("5th modal should be dropped")
	}

	s := e.Snapshot()
	if s.Active == nil || s.Active.ID != "p1" {
		t.Fatalf("active = %v, want p1", s.Active)
	}
	if !equal(ids(s.Queue), []string{"p2", "p3", "p4"}) {
		t.Errorf("queue = %v, want [p2 p3 p4]", ids(s.Queue))
	}
	if s.Stats.QueueDropped != 1 {
		t.Errorf("QueueDropped = %d, want 1", s.Stats.QueueDropped)
	}
}

func TestEngine_PromotionInArrivalOrder(t *testing.T) {
	e, _, mt := newTestEngine(t)
	for _, id := range []string{"p1", "p2", "p3"} {
		mt.Deliver(EventPrompt, modal(id))
	}

	for _, want := range []string{"p1", "p2", "p3"} {
		s := e.Snapshot()
		if s.Active == nil || s.Active.ID != want {
			t.Fatalf("active = %v, want %s", s.Active, want)
		}
		if err := e.Respond(want, ActionOK, nil); err != nil {
			t.Fatalf("Respond(%s): %v", want, err)
		}
	}
	if e.Snapshot().Active != nil {
		t.Error("queue should be empty")
	}
	got := responses(t, mt)
	if len(got) != 3 || got[0].ID != "p1" || got[2].ID != "p3" {
		t.Errorf("responses = %+v", got)
	}
}

func TestEngine_ToastsKeepMostRecentFive(t *testing.T) {
	e, clock, mt := newTestEngine(t)
	for i := 1; i <= 8; i++ {
		mt.Deliver(EventPrompt, toast(fmt.Sprintf("t%d", i)))
		clock.Advance(300 * time.Millisecond)
	}
	got := ids(e.Snapshot().Toasts)
	if !equal(got, []string{"t4", "t5", "t6", "t7", "t8"}) {
		t.Errorf("toasts = %v, want [t4 t5 t6 t7 t8]", got)
	}
	if e.Snapshot().Active != nil {
		t.Error("toasts must not become active")
	}
}

func TestEngine_ToastTimeoutAndSwipe(t *testing.T) {
	e, clock, mt := newTestEngine(t)
	mt.Deliver(EventPrompt, map[string]any{"id": "short", "type": "toast", "title": "a", "severity": "info", "timeout": 1000})
	mt.Deliver(EventPrompt, toast("default"))
	mt.Deliver(EventPrompt, toast("swiped"))

	if err := e.DismissToast("swiped"); err != nil {
		t.Fatal(err)
	}
	if err := e.DismissToast("swiped"); !errors.Is(err, ErrUnknownPrompt) {
		t.Errorf("second DismissToast = %v, want ErrUnknownPrompt", err)
	}

	clock.Advance(1500 * time.Millisecond)
	if got := ids(e.Snapshot().Toasts); !equal(got, []string{"default"}) {
		t.Errorf("after 1.5s toasts = %v, want [default]", got)
	}
	clock.Advance(defaultToastTTL * time.Millisecond)
	if n := len(e.Snapshot().Toasts); n != 0 {
		t.Errorf("toasts = %d, want 0", n)
	}
	if n := len(responses(t, mt)); n != 0 {
		t.Errorf("toasts sent %d responses, want 0", n)
	}
}

func TestEngine_DismissAll(t *testing.T) {
	e, clock, mt := newTestEngine(t)
	mt.Deliver(EventPrompt, modal("P1"))
	mt.Deliver(EventPrompt, modal("P2"))
	mt.Deliver(EventPrompt, modal("P3"))
	mt.Deliver(EventPrompt, toast("T4"))
	mt.Deliver(EventPrompt, toast("T5"))

	out := e.DismissAll()

	want := []string{"P1", "P2", "P3"}
	sent := responses(t, mt)
	if len(sent) != len(want) || len(out) != len(want) {
		t.Fatalf("sent %+v returned %+v, want %v", sent, out, want)
	}
	for i, id := range want {
		if sent[i].ID != id || sent[i].Action != ActionDismissed {
			t.Errorf("response %d = %+v, want %s dismissed", i, sent[i], id)
		}
	}
	s := e.Snapshot()
	if s.Active != nil || len(s.Queue) != 0 || len(s.Toasts) != 0 {
		t.Errorf("state after DismissAll = %+v", s)
	}

	// Cancelled toast timers must not fire into a later state.
	clock.Advance(4500 * time.Millisecond)
	mt.Deliver(EventPrompt, toast("T4"))
	clock.Advance(time.Second)
	if len(e.Snapshot().Toasts) != 1 {
		t.Error("stale timer removed a new toast")
	}
}

func TestEngine_DismissAllWhileTripped(t *testing.T) {
	e, _, mt := newTestEngine(t)
	mt.Deliver(EventPrompt, modal("P1"))
	mt.Deliver(EventPrompt, modal("P2"))
	for i := 0; i < circuitThreshold; i++ {
		mt.Deliver(EventPrompt, toast(fmt.Sprintf("t%d", i)))
	}
	if !e.Snapshot().CircuitTripped {
		t.Fatal("breaker should be tripped")
	}

	out := e.DismissAll()
	if len(out) != 2 || out[0].ID != "P1" || out[1].ID != "P2" {
		t.Errorf("DismissAll = %+v", out)
	}
	if e.Snapshot().Active != nil {
		t.Error("active should be cleared")
	}
}

func TestEngine_ForceClose(t *testing.T) {
	e, clock, mt := newTestEngine(t)
	mt.Deliver(EventPrompt, map[string]any{"id": "trap", "type": "input", "title": "x", "severity": "info",
		"inputs": []map[string]any{{"name": "code", "label": "Code"}}})
	mt.Deliver(EventPrompt, modal("next"))

	if _, err := e.ForceClose(); !errors.Is(err, ErrForceCloseNotReady) {
		t.Fatalf("ForceClose before delay = %v, want ErrForceCloseNotReady", err)
	}
	if e.Snapshot().ForceCloseAvailable {
		t.Error("force close should not be available yet")
	}

	var notified bool
	unsub := e.Subscribe(func(s Snapshot) {
		if s.ForceCloseAvailable {
			notified = true
		}
	})
	defer unsub()
	clock.Advance(ForceCloseDelay)
	if !notified || !e.Snapshot().ForceCloseAvailable {
		t.Fatal("subscribers should see force close become available")
	}

	resp, err := e.ForceClose()
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "trap" || resp.Action != ActionDismissed {
		t.Errorf("ForceClose = %+v", resp)
	}
	s := e.Snapshot()
	if s.Active == nil || s.Active.ID != "next" || s.ForceCloseAvailable {
		t.Errorf("after ForceClose active=%v available=%v", s.Active, s.ForceCloseAvailable)
	}
}

func TestEngine_RespondValidation(t *testing.T) {
	e, _, mt := newTestEngine(t)
	mt.Deliver(EventPrompt, map[string]any{
		"id": "ask", "type": "input", "title": "Token", "severity": "info",
		"inputs":  []map[string]any{{"name": "token", "label": "Token", "type": "password"}},
		"buttons": []map[string]any{{"label": "Send", "action": "send"}},
	})

	if err := e.Respond("other", ActionOK, nil); !errors.Is(err, ErrUnknownPrompt) {
		t.Errorf("Respond(other) = %v, want ErrUnknownPrompt", err)
	}
	if err := e.Respond("ask", "delete-everything", nil); err == nil {
		t.Error("undeclared action should fail")
	}
	if err := e.Respond("ask", "send", map[string]string{"evil": "x"}); err == nil {
		t.Error("undeclared input should fail")
	}
	if e.Snapshot().Active == nil {
		t.Fatal("failed responses must not resolve the prompt")
	}

	if err := e.Respond("ask", "send", map[string]string{"token": "abc"}); err != nil {
		t.Fatal(err)
	}
	got := responses(t, mt)
	if len(got) != 1 || got[0].Inputs["token"] != "abc" || got[0].Action != "send" {
		t.Errorf("responses = %+v", got)
	}
}

func TestEngine_RespondKeepsPromptWhenSendFails(t *testing.T) {
	e, clock, mt := newTestEngine(t)
	mt.Deliver(EventPrompt, modal("p1"))
	mt.Deliver(EventPrompt, modal("p2"))

	mt.SetEmitError(transport.ErrNotConnected)
	if err := e.Respond("p1", ActionOK, nil); !errors.Is(err, ErrNotDelivered) {
		t.Fatalf("Respond = %v, want ErrNotDelivered", err)
	}
	clock.Advance(ForceCloseDelay)
	if _, err := e.ForceClose(); !errors.Is(err, ErrNotDelivered) {
		t.Fatalf("ForceClose = %v, want ErrNotDelivered", err)
	}
	s := e.Snapshot()
	if s.Active == nil || s.Active.ID != "p1" || !equal(ids(s.Queue), []string{"p2"}) {
		t.Fatalf("undelivered response changed state: active=%v queue=%v", s.Active, ids(s.Queue))
	}

	mt.SetEmitError(nil)
	if err := e.Respond("p1", ActionOK, nil); err != nil {
		t.Fatal(err)
	}
	if got := responses(t, mt); len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("responses = %+v", got)
	}
	if s := e.Snapshot(); s.Active == nil || s.Active.ID != "p2" {
		t.Errorf("active = %v, want p2", s.Active)
	}
}

func TestEngine_RejectsInvalidAndDuplicate(t *testing.T) {
	e, clock, _ := newTestEngine(t)
	bad := []string{
		`{"id":"","type":"toast","title":"x"}`,
		`{"id":"a b","type":"toast","title":"x"}`,
		`{"id":"x","type":"popup","title":"x"}`,
		`{"id":"x","type":"toast","title":"x","severity":"critical"}`,
		`{"id":"x","type":"notice","title":"x","inputs":[{"name":"a","label":"a"}]}`,
		`not json`,
	}
	for _, raw := range bad {
		clock.Advance(time.Second)
		if rejectReason(e.Handle(json.RawMessage(raw))) != RejectInvalid {
			t.Errorf("Handle(%s) should be invalid", raw)
		}
	}

	e.Reset()
	raw, _ := json.Marshal(modal("dup"))
	if err := e.Handle(raw); err != nil {
		t.Fatal(err)
	}
	if rejectReason(e.Handle(raw)) != RejectDuplicate {
		t.Error("duplicate id should be rejected")
	}
}

func TestEngine_SeverityDefault(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Handle(json.RawMessage(`{"id":"n","type":"notice","title":"hi"}`))
	if s := e.Snapshot(); s.Active == nil || s.Active.Severity != SeverityInfo {
		t.Errorf("active = %+v, want info severity", s.Active)
	}
}

func TestEngine_Blocked(t *testing.T) {
	e, _, mt := newTestEngine(t)
	if e.Blocked() {
		t.Error("empty engine should not block")
	}
	mt.Deliver(EventPrompt, toast("t"))
	if e.Blocked() {
		t.Error("toasts should not block")
	}
	mt.Deliver(EventPrompt, modal("m"))
	if !e.Blocked() {
		t.Error("active modal should block")
	}
}
