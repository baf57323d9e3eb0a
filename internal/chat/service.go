// Package chat is the orchestration layer for a conversation turn: it decides
// whether a message goes to the AI router, to assigned staff, or cancels a
// pending return, and owns the close/release lifecycle.
package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/psds-microservice/chat-orchestrator/internal/errs"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
	"github.com/psds-microservice/chat-orchestrator/internal/routing"
)

type Conversations interface {
	Create(ctx context.Context, customerID string) (*model.Conversation, error)
	Get(ctx context.Context, id uint64) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uint64, sender model.Sender, senderID, content string) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID uint64) ([]model.Message, error)
	ReturnToAI(ctx context.Context, id uint64) error
	Close(ctx context.Context, id uint64) error
}

type Router interface {
	Route(ctx context.Context, conversationID uint64, text string) routing.Outcome
}

type HandoffQueue interface {
	Enqueue(ctx context.Context, conversationID uint64, reason model.HandoffReason, customerMessage, aiContext string, priority int) (*model.HandoffQueueEntry, error)
	Resolve(ctx context.Context, conversationID uint64) error
}

type ReturnSupervisor interface {
	QueueReturn(ctx context.Context, conversationID uint64) error
	CancelIfPending(ctx context.Context, conversationID uint64) bool
}

type Presence interface {
	DecrementWorkload(ctx context.Context, staffID string) error
}

type Pusher interface {
	PushToUser(ctx context.Context, userID string, payload map[string]interface{})
}

// Deps are the collaborators of the chat service, as interfaces so tests can
// swap in fakes.
type Deps struct {
	Conversations Conversations
	Router        Router
	Queue         HandoffQueue
	Supervisor    ReturnSupervisor
	Presence      Presence
	Push          Pusher
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// TurnResult is what one inbound customer message produced. Reply is the AI
// or system reply persisted for this turn, if any; Handoff reports whether
// the turn put the conversation in the queue.
type TurnResult struct {
	Message *model.Message      `json:"message"`
	Reply   *model.Message      `json:"reply,omitempty"`
	Handoff bool                `json:"handoff"`
	Reason  model.HandoffReason `json:"reason,omitempty"`
	Intent  model.Intent        `json:"intent,omitempty"`
}

func (s *Service) CreateConversation(ctx context.Context, customerID string) (*model.Conversation, error) {
	return s.deps.Conversations.Create(ctx, customerID)
}

func (s *Service) GetConversation(ctx context.Context, id uint64) (*model.Conversation, error) {
	return s.deps.Conversations.Get(ctx, id)
}

func (s *Service) ListMessages(ctx context.Context, id uint64) ([]model.Message, error) {
	if _, err := s.deps.Conversations.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.deps.Conversations.ListMessages(ctx, id)
}

// HandleCustomerMessage runs one customer turn. Order matters: the message is
// persisted first, then a pending return-to-AI is cancelled (customer keeps
// the human), then the message goes to assigned staff or the AI router.
func (s *Service) HandleCustomerMessage(ctx context.Context, conversationID uint64, text string) (*TurnResult, error) {
	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == model.ConversationStatusClosed {
		// A message on a closed conversation reopens it as a fresh AI turn.
		if err := s.deps.Conversations.ReturnToAI(ctx, conversationID); err != nil {
			return nil, err
		}
		conv.Status = model.ConversationStatusOpen
		conv.AssignedStaffID = ""
	}

	msg, err := s.deps.Conversations.AppendMessage(ctx, conversationID, model.SenderCustomer, conv.CustomerID, text)
	if err != nil {
		return nil, err
	}

	if s.deps.Supervisor != nil && s.deps.Supervisor.CancelIfPending(ctx, conversationID) {
		s.pushToStaff(ctx, conv.AssignedStaffID, msg)
		return &TurnResult{Message: msg}, nil
	}

	if conv.AssignedStaffID != "" {
		s.pushToStaff(ctx, conv.AssignedStaffID, msg)
		return &TurnResult{Message: msg}, nil
	}

	out := s.deps.Router.Route(ctx, conversationID, text)

	sender := model.SenderAI
	if out.Handoff {
		sender = model.SenderSystem
	}
	reply, err := s.deps.Conversations.AppendMessage(ctx, conversationID, sender, "", out.Reply)
	if err != nil {
		return nil, fmt.Errorf("persist reply for conversation %d: %w", conversationID, err)
	}
	s.pushToCustomer(ctx, conv.CustomerID, reply)

	if out.Handoff {
		if _, err := s.deps.Queue.Enqueue(ctx, conversationID, out.Reason, text, out.AIContext(), 0); err != nil {
			log.Printf("chat: enqueue conversation %d: %v", conversationID, err)
		}
	}
	return &TurnResult{
		Message: msg,
		Reply:   reply,
		Handoff: out.Handoff,
		Reason:  out.Reason,
		Intent:  out.Intent,
	}, nil
}

// HandleStaffMessage relays a staff reply to the customer. Only the assigned
// staff member may write.
func (s *Service) HandleStaffMessage(ctx context.Context, conversationID uint64, staffID, text string) (*model.Message, error) {
	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.AssignedStaffID != staffID {
		return nil, errs.ErrNotAssigned
	}
	msg, err := s.deps.Conversations.AppendMessage(ctx, conversationID, model.SenderStaff, staffID, text)
	if err != nil {
		return nil, err
	}
	s.pushToCustomer(ctx, conv.CustomerID, msg)
	return msg, nil
}

// ReleaseToAI starts the grace countdown back to the AI. The assignment and
// workload stay untouched until the countdown actually expires.
func (s *Service) ReleaseToAI(ctx context.Context, conversationID uint64, staffID string) error {
	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.AssignedStaffID != staffID {
		return errs.ErrNotAssigned
	}
	return s.deps.Supervisor.QueueReturn(ctx, conversationID)
}

// CloseConversation resolves any open queue entry, frees the staff slot and
// marks the conversation closed.
func (s *Service) CloseConversation(ctx context.Context, conversationID uint64) error {
	conv, err := s.deps.Conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if s.deps.Queue != nil {
		if err := s.deps.Queue.Resolve(ctx, conversationID); err != nil {
			log.Printf("chat: resolve queue entry for conversation %d: %v", conversationID, err)
		}
	}
	if conv.AssignedStaffID != "" && s.deps.Presence != nil {
		if err := s.deps.Presence.DecrementWorkload(ctx, conv.AssignedStaffID); err != nil {
			log.Printf("chat: decrement workload for %s: %v", conv.AssignedStaffID, err)
		}
	}
	return s.deps.Conversations.Close(ctx, conversationID)
}

func (s *Service) pushToCustomer(ctx context.Context, customerID string, msg *model.Message) {
	s.push(ctx, customerID, msg)
}

func (s *Service) pushToStaff(ctx context.Context, staffID string, msg *model.Message) {
	if staffID == "" {
		return
	}
	s.push(ctx, staffID, msg)
}

func (s *Service) push(ctx context.Context, userID string, msg *model.Message) {
	if s.deps.Push == nil {
		return
	}
	s.deps.Push.PushToUser(ctx, userID, map[string]interface{}{
		"event":           "chat.message",
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"sender":          string(msg.Sender),
		"content":         msg.Content,
	})
}
