// Package handback manages the timed hand-back of a conversation from staff
// to the AI persona. After staff release a conversation the customer gets a
// short grace window to keep the human; if they stay silent the AI resumes.
//
// The pending set is in-memory only. A process restart loses pending returns,
// which errs on the safe side: the conversation silently stays with staff.
package handback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

// ConversationStore is the slice of the conversation service the supervisor
// needs.
type ConversationStore interface {
	Get(ctx context.Context, id uint64) (*model.Conversation, error)
	// ReturnToAI clears the assigned staff and reopens the conversation.
	ReturnToAI(ctx context.Context, id uint64) error
	AppendMessage(ctx context.Context, conversationID uint64, sender model.Sender, senderID, content string) (*model.Message, error)
}

type QueueResolver interface {
	Resolve(ctx context.Context, conversationID uint64) error
}

type WorkloadReducer interface {
	DecrementWorkload(ctx context.Context, staffID string) error
}

type Pusher interface {
	PushToUser(ctx context.Context, userID string, payload map[string]interface{})
}

// Deps are the supervisor's collaborators.
type Deps struct {
	Conversations ConversationStore
	Queue         QueueResolver
	Presence      WorkloadReducer
	Push          Pusher
}

const (
	graceNotice   = "Nhân viên đã kết thúc phiên hỗ trợ. Nếu quý khách vẫn cần nhân viên, hãy nhắn tin trong 30 giây tới, nếu không trợ lý ảo sẽ tiếp tục hỗ trợ ạ."
	cancelNotice  = "Dạ nhân viên sẽ tiếp tục hỗ trợ quý khách ạ."
	resumedNotice = "Trợ lý ảo đã tiếp tục hỗ trợ cuộc trò chuyện."
	aiGreeting    = "Dạ em là trợ lý ảo của shop, em có thể giúp gì thêm cho quý khách ạ?"
)

// Supervisor is a per-conversation timed state machine: Idle (no map entry)
// or PendingReturn (map entry with a deadline). It is the single source of
// truth for "is a return pending" during the grace window.
type Supervisor struct {
	deps       Deps
	grace      time.Duration
	sweepEvery time.Duration

	mu      sync.Mutex
	pending map[uint64]time.Time

	now func() time.Time
}

func NewSupervisor(deps Deps, grace, sweepEvery time.Duration) *Supervisor {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	if sweepEvery <= 0 {
		sweepEvery = 2 * time.Second
	}
	return &Supervisor{
		deps:       deps,
		grace:      grace,
		sweepEvery: sweepEvery,
		pending:    make(map[uint64]time.Time),
		now:        time.Now,
	}
}

// QueueReturn starts (or restarts) the grace countdown for a conversation.
// Calling it again while already pending resets the deadline instead of
// creating a second timer.
func (s *Supervisor) QueueReturn(ctx context.Context, conversationID uint64) error {
	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("queue return: %w", err)
	}

	s.mu.Lock()
	s.pending[conversationID] = s.now().Add(s.grace)
	s.mu.Unlock()

	if msg, err := s.deps.Conversations.AppendMessage(ctx, conversationID, model.SenderSystem, "", graceNotice); err != nil {
		log.Printf("handback: grace notice for conversation %d: %v", conversationID, err)
	} else {
		s.pushMessage(ctx, conv.CustomerID, msg)
	}
	return nil
}

// CancelIfPending keeps the conversation with staff if the customer spoke up
// before the deadline. The deadline check and the removal are one atomic
// step: whoever removes the entry first wins the race with the sweep.
func (s *Supervisor) CancelIfPending(ctx context.Context, conversationID uint64) bool {
	s.mu.Lock()
	deadline, ok := s.pending[conversationID]
	if !ok || !s.now().Before(deadline) {
		// Not pending, or the sweep's transition already owns this entry.
		s.mu.Unlock()
		return false
	}
	delete(s.pending, conversationID)
	s.mu.Unlock()

	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		log.Printf("handback: cancel lookup for conversation %d: %v", conversationID, err)
		return true
	}
	if msg, err := s.deps.Conversations.AppendMessage(ctx, conversationID, model.SenderSystem, "", cancelNotice); err != nil {
		log.Printf("handback: cancel notice for conversation %d: %v", conversationID, err)
	} else {
		s.pushMessage(ctx, conv.CustomerID, msg)
	}
	return true
}

// IsPending reports whether a return is currently pending for the
// conversation. The chat-send path consults this before routing to the AI.
func (s *Supervisor) IsPending(conversationID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[conversationID]
	return ok
}

// Run drives the periodic sweep until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep applies the terminal transition to every entry whose deadline has
// passed. Removal from the pending set happens before the side effects, so a
// racing cancel observes an absent entry and does nothing further.
func (s *Supervisor) Sweep(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	var due []uint64
	for id, deadline := range s.pending {
		if !now.Before(deadline) {
			due = append(due, id)
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()

	for _, id := range due {
		s.resume(ctx, id)
	}
}

// resume is the only transition that changes who owns the conversation.
func (s *Supervisor) resume(ctx context.Context, conversationID uint64) {
	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		log.Printf("handback: resume lookup for conversation %d: %v", conversationID, err)
		return
	}
	staffID := conv.AssignedStaffID

	if err := s.deps.Conversations.ReturnToAI(ctx, conversationID); err != nil {
		log.Printf("handback: return conversation %d to AI: %v", conversationID, err)
		return
	}
	if s.deps.Queue != nil {
		if err := s.deps.Queue.Resolve(ctx, conversationID); err != nil {
			log.Printf("handback: resolve queue entry for conversation %d: %v", conversationID, err)
		}
	}
	if staffID != "" && s.deps.Presence != nil {
		if err := s.deps.Presence.DecrementWorkload(ctx, staffID); err != nil {
			log.Printf("handback: decrement workload for %s: %v", staffID, err)
		}
	}

	if msg, err := s.deps.Conversations.AppendMessage(ctx, conversationID, model.SenderSystem, "", resumedNotice); err != nil {
		log.Printf("handback: resume notice for conversation %d: %v", conversationID, err)
	} else {
		s.pushMessage(ctx, conv.CustomerID, msg)
	}
	if msg, err := s.deps.Conversations.AppendMessage(ctx, conversationID, model.SenderAI, "", aiGreeting); err != nil {
		log.Printf("handback: greeting for conversation %d: %v", conversationID, err)
	} else {
		s.pushMessage(ctx, conv.CustomerID, msg)
	}
}

func (s *Supervisor) pushMessage(ctx context.Context, customerID string, msg *model.Message) {
	if s.deps.Push == nil {
		return
	}
	s.deps.Push.PushToUser(ctx, customerID, map[string]interface{}{
		"event":           "chat.message",
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"sender":          string(msg.Sender),
		"content":         msg.Content,
	})
}
