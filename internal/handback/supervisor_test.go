package handback

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

type fakeStore struct {
	conv      model.Conversation
	returned  []uint64
	appended  []model.Message
	getErr    error
	returnErr error
}

func (f *fakeStore) Get(_ context.Context, id uint64) (*model.Conversation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c := f.conv
	c.ID = id
	return &c, nil
}

func (f *fakeStore) ReturnToAI(_ context.Context, id uint64) error {
	if f.returnErr != nil {
		return f.returnErr
	}
	f.returned = append(f.returned, id)
	return nil
}

func (f *fakeStore) AppendMessage(_ context.Context, conversationID uint64, sender model.Sender, senderID, content string) (*model.Message, error) {
	msg := model.Message{
		ID:             "m" + strconv.Itoa(len(f.appended)),
		ConversationID: conversationID,
		Sender:         sender,
		SenderID:       senderID,
		Content:        content,
	}
	f.appended = append(f.appended, msg)
	return &msg, nil
}

type fakeResolver struct{ resolved []uint64 }

func (f *fakeResolver) Resolve(_ context.Context, conversationID uint64) error {
	f.resolved = append(f.resolved, conversationID)
	return nil
}

type fakeReducer struct{ decremented []string }

func (f *fakeReducer) DecrementWorkload(_ context.Context, staffID string) error {
	f.decremented = append(f.decremented, staffID)
	return nil
}

type fakePusher struct{ pushed []map[string]interface{} }

func (f *fakePusher) PushToUser(_ context.Context, userID string, payload map[string]interface{}) {
	p := map[string]interface{}{"user": userID}
	for k, v := range payload {
		p[k] = v
	}
	f.pushed = append(f.pushed, p)
}

func newTestSupervisor(store *fakeStore) (*Supervisor, *fakeResolver, *fakeReducer, *time.Time) {
	resolver := &fakeResolver{}
	reducer := &fakeReducer{}
	s := NewSupervisor(Deps{
		Conversations: store,
		Queue:         resolver,
		Presence:      reducer,
		Push:          &fakePusher{},
	}, 30*time.Second, 2*time.Second)
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, resolver, reducer, &clock
}

func TestCancelBeforeDeadline(t *testing.T) {
	store := &fakeStore{conv: model.Conversation{CustomerID: "cust-1", AssignedStaffID: "staff-1"}}
	s, _, _, clock := newTestSupervisor(store)
	ctx := context.Background()

	if err := s.QueueReturn(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if !s.IsPending(7) {
		t.Fatal("expected return pending after QueueReturn")
	}

	*clock = clock.Add(10 * time.Second)
	if !s.CancelIfPending(ctx, 7) {
		t.Fatal("cancel before deadline should succeed")
	}
	if s.IsPending(7) {
		t.Error("conversation should be idle after cancel")
	}
	if len(store.returned) != 0 {
		t.Errorf("cancel must not return the conversation to AI, got %v", store.returned)
	}
	// Grace notice plus cancel confirmation.
	if len(store.appended) != 2 {
		t.Fatalf("appended %d messages, want 2", len(store.appended))
	}
	if store.appended[1].Content != cancelNotice {
		t.Errorf("second message = %q, want cancel notice", store.appended[1].Content)
	}
}

func TestCancelAfterDeadline(t *testing.T) {
	store := &fakeStore{conv: model.Conversation{CustomerID: "cust-1"}}
	s, _, _, clock := newTestSupervisor(store)
	ctx := context.Background()

	if err := s.QueueReturn(ctx, 7); err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(31 * time.Second)
	if s.CancelIfPending(ctx, 7) {
		t.Error("cancel at or after deadline must fail and leave the entry for the sweep")
	}
	if !s.IsPending(7) {
		t.Error("entry should remain pending until the sweep processes it")
	}
}

func TestCancelWhenIdle(t *testing.T) {
	store := &fakeStore{}
	s, _, _, _ := newTestSupervisor(store)
	if s.CancelIfPending(context.Background(), 99) {
		t.Error("cancel on an idle conversation should report false")
	}
}

func TestSweepResumesExactlyOnce(t *testing.T) {
	store := &fakeStore{conv: model.Conversation{CustomerID: "cust-1", AssignedStaffID: "staff-3"}}
	s, resolver, reducer, clock := newTestSupervisor(store)
	ctx := context.Background()

	if err := s.QueueReturn(ctx, 42); err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(30 * time.Second)
	s.Sweep(ctx)

	if s.IsPending(42) {
		t.Error("entry should be gone after the sweep")
	}
	if len(store.returned) != 1 || store.returned[0] != 42 {
		t.Fatalf("returned = %v, want [42]", store.returned)
	}
	if len(resolver.resolved) != 1 || resolver.resolved[0] != 42 {
		t.Errorf("resolved = %v, want [42]", resolver.resolved)
	}
	if len(reducer.decremented) != 1 || reducer.decremented[0] != "staff-3" {
		t.Errorf("decremented = %v, want [staff-3]", reducer.decremented)
	}
	// Grace notice, resumed notice, AI greeting.
	if len(store.appended) != 3 {
		t.Fatalf("appended %d messages, want 3", len(store.appended))
	}
	if store.appended[1].Content != resumedNotice {
		t.Errorf("resume message = %q", store.appended[1].Content)
	}
	if store.appended[2].Sender != model.SenderAI || store.appended[2].Content != aiGreeting {
		t.Errorf("greeting = %+v", store.appended[2])
	}

	// A second sweep finds nothing.
	s.Sweep(ctx)
	if len(store.returned) != 1 {
		t.Errorf("re-sweep must not return again, got %v", store.returned)
	}
}

func TestSweepSkipsFutureDeadlines(t *testing.T) {
	store := &fakeStore{conv: model.Conversation{CustomerID: "cust-1"}}
	s, _, _, clock := newTestSupervisor(store)
	ctx := context.Background()

	if err := s.QueueReturn(ctx, 1); err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(29 * time.Second)
	s.Sweep(ctx)
	if !s.IsPending(1) {
		t.Error("sweep before the deadline must leave the entry alone")
	}
	if len(store.returned) != 0 {
		t.Errorf("returned = %v, want none", store.returned)
	}
}

func TestQueueReturnExtendsDeadline(t *testing.T) {
	store := &fakeStore{conv: model.Conversation{CustomerID: "cust-1"}}
	s, _, _, clock := newTestSupervisor(store)
	ctx := context.Background()

	if err := s.QueueReturn(ctx, 5); err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(20 * time.Second)
	if err := s.QueueReturn(ctx, 5); err != nil {
		t.Fatal(err)
	}

	// 35s after the first call, 15s after the second: still pending.
	*clock = clock.Add(15 * time.Second)
	s.Sweep(ctx)
	if !s.IsPending(5) {
		t.Fatal("second QueueReturn should have pushed the deadline out")
	}

	*clock = clock.Add(15 * time.Second)
	s.Sweep(ctx)
	if s.IsPending(5) {
		t.Error("entry should resume once the extended deadline passes")
	}
	if len(store.returned) != 1 {
		t.Errorf("returned = %v, want exactly one resume", store.returned)
	}
}

func TestNoWorkloadDecrementWithoutStaff(t *testing.T) {
	store := &fakeStore{conv: model.Conversation{CustomerID: "cust-1"}}
	s, _, reducer, clock := newTestSupervisor(store)
	ctx := context.Background()

	if err := s.QueueReturn(ctx, 9); err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(time.Minute)
	s.Sweep(ctx)
	if len(reducer.decremented) != 0 {
		t.Errorf("no staff assigned, decremented = %v", reducer.decremented)
	}
}
