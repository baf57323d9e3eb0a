// Package queue owns the durable queue of conversations waiting for a human,
// including priority/tag derivation and best-effort auto-assignment.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/errs"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StaffSelector is the slice of the presence tracker the queue needs.
type StaffSelector interface {
	GetAvailableStaff(ctx context.Context) ([]model.StaffPresence, error)
	IncrementWorkload(ctx context.Context, staffID string) error
	DecrementWorkload(ctx context.Context, staffID string) error
}

// Notifier is the slice of the push publisher the queue needs.
type Notifier interface {
	PushToUser(ctx context.Context, userID string, payload map[string]interface{})
	NotifyOnlineStaff(ctx context.Context, payload map[string]interface{})
}

type Queue struct {
	db       *gorm.DB
	staff    StaffSelector
	notifier Notifier
}

func New(db *gorm.DB, staff StaffSelector, notifier Notifier) *Queue {
	return &Queue{db: db, staff: staff, notifier: notifier}
}

// PriorityForReason is the fixed reason → priority table (higher = more
// urgent). Unknown reasons get the lowest tier.
func PriorityForReason(r model.HandoffReason) int {
	switch r {
	case model.ReasonPaymentIssue:
		return 8
	case model.ReasonExplicitRequest:
		return 7
	case model.ReasonOrderInquiry:
		return 6
	case model.ReasonPIIDetected:
		return 5
	case model.ReasonAIError:
		return 4
	case model.ReasonLowConfidence, model.ReasonComplexQuery:
		return 3
	default:
		return 3
	}
}

// TagsForReason derives the descriptive staff-facing tags for a reason.
func TagsForReason(r model.HandoffReason) []string {
	switch r {
	case model.ReasonPaymentIssue:
		return []string{"payment", "urgent"}
	case model.ReasonExplicitRequest:
		return []string{"requested-human"}
	case model.ReasonOrderInquiry:
		return []string{"order"}
	case model.ReasonPIIDetected:
		return []string{"pii", "privacy"}
	case model.ReasonAIError:
		return []string{"ai-error"}
	case model.ReasonLowConfidence:
		return []string{"low-confidence"}
	case model.ReasonComplexQuery:
		return []string{"complex"}
	default:
		return nil
	}
}

// Enqueue adds a conversation to the queue. If an unresolved entry already
// exists the existing entry is returned unchanged — first wins, second
// no-ops. Priority <= 0 means "derive from reason".
func (q *Queue) Enqueue(ctx context.Context, conversationID uint64, reason model.HandoffReason, customerMessage, aiContext string, priority int) (*model.HandoffQueueEntry, error) {
	if priority <= 0 {
		priority = PriorityForReason(reason)
	}
	entry := &model.HandoffQueueEntry{
		ConversationID:  conversationID,
		Reason:          reason,
		Priority:        priority,
		Tags:            TagsForReason(reason),
		CustomerMessage: customerMessage,
		AIContext:       aiContext,
		EnqueuedAt:      time.Now(),
	}

	if existing, err := q.openEntry(ctx, conversationID); err == nil {
		return existing, nil
	} else if !errors.Is(err, errs.ErrQueueEntryNotFound) {
		return nil, err
	}

	if err := q.db.WithContext(ctx).Create(entry).Error; err != nil {
		// Lost the race on the partial unique index: someone else enqueued
		// this conversation between our check and insert. Use their entry.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return q.openEntry(ctx, conversationID)
		}
		return nil, fmt.Errorf("enqueue conversation %d: %w", conversationID, err)
	}

	// Fire-and-forget: let online staff know even if the request is gone.
	if q.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		go func() {
			defer cancel()
			q.notifier.NotifyOnlineStaff(notifyCtx, map[string]interface{}{
				"event":            "handoff.enqueued",
				"conversation_id":  conversationID,
				"reason":           string(reason),
				"priority":         priority,
				"tags":             []string(entry.Tags),
				"customer_message": customerMessage,
			})
		}()
	}

	if _, err := q.TryAutoAssign(ctx, entry.ID); err != nil {
		log.Printf("queue: auto-assign entry %d: %v", entry.ID, err)
	}
	return q.entryByID(ctx, entry.ID)
}

func (q *Queue) openEntry(ctx context.Context, conversationID uint64) (*model.HandoffQueueEntry, error) {
	var entry model.HandoffQueueEntry
	err := q.db.WithContext(ctx).
		Where("conversation_id = ? AND resolved_at IS NULL", conversationID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrQueueEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (q *Queue) entryByID(ctx context.Context, id uint64) (*model.HandoffQueueEntry, error) {
	var entry model.HandoffQueueEntry
	err := q.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrQueueEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// TryAutoAssign makes a single best-effort attempt to hand the entry to the
// least-loaded available staff member. It never waits for staff to free up.
func (q *Queue) TryAutoAssign(ctx context.Context, entryID uint64) (bool, error) {
	entry, err := q.entryByID(ctx, entryID)
	if err != nil {
		return false, err
	}
	if entry.AssignedStaffID != "" || !entry.Open() {
		return false, nil
	}
	if q.staff == nil {
		return false, nil
	}
	candidates, err := q.staff.GetAvailableStaff(ctx)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		return false, nil
	}
	if err := q.AssignToStaff(ctx, entry.ConversationID, candidates[0].StaffID); err != nil {
		return false, err
	}
	return true, nil
}

// AssignToStaff sets the assignment fields, marks the conversation assigned,
// bumps the staff workload and notifies the staff client. Reassigning an
// already-assigned entry moves the workload slot from the previous assignee
// to the new one; assigning to the current assignee is a no-op.
func (q *Queue) AssignToStaff(ctx context.Context, conversationID uint64, staffID string) error {
	now := time.Now()
	var previous string
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.HandoffQueueEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ? AND resolved_at IS NULL", conversationID).
			First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrQueueEntryNotFound
		}
		if err != nil {
			return err
		}
		previous = entry.AssignedStaffID
		if previous == staffID {
			return nil
		}
		err = tx.Model(&model.HandoffQueueEntry{}).
			Where("id = ?", entry.ID).
			Updates(map[string]interface{}{
				"assigned_staff_id": staffID,
				"assigned_at":       now,
			}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"status":            model.ConversationStatusAssigned,
				"assigned_staff_id": staffID,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("assign conversation %d to %s: %w", conversationID, staffID, err)
	}
	if previous == staffID {
		return nil
	}
	if previous != "" {
		// The previous assignee gives the slot back, otherwise their counter
		// would stay raised until an unrelated close.
		if err := q.staff.DecrementWorkload(ctx, previous); err != nil {
			log.Printf("queue: decrement workload for %s: %v", previous, err)
		}
	}
	if err := q.staff.IncrementWorkload(ctx, staffID); err != nil {
		log.Printf("queue: increment workload for %s: %v", staffID, err)
	}
	if q.notifier != nil {
		q.notifier.PushToUser(ctx, staffID, map[string]interface{}{
			"event":           "handoff.assigned",
			"conversation_id": conversationID,
		})
	}
	return nil
}

// Resolve stamps the entry resolved. Workload decrement is owned by the chat
// service when the conversation actually closes or returns to the AI.
func (q *Queue) Resolve(ctx context.Context, conversationID uint64) error {
	res := q.db.WithContext(ctx).Model(&model.HandoffQueueEntry{}).
		Where("conversation_id = ? AND resolved_at IS NULL", conversationID).
		Update("resolved_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	// Already resolved (or never queued) is a no-op, not an error.
	return nil
}

// waitingOrder is the authoritative read ordering: most urgent first, FIFO
// within the same priority tier.
const waitingOrder = "priority DESC, enqueued_at ASC"

func (q *Queue) GetWaitingQueue(ctx context.Context) ([]model.HandoffQueueEntry, error) {
	var out []model.HandoffQueueEntry
	err := q.db.WithContext(ctx).
		Where("assigned_staff_id = '' AND resolved_at IS NULL").
		Order(waitingOrder).
		Find(&out).Error
	return out, err
}

func (q *Queue) GetStaffQueue(ctx context.Context, staffID string) ([]model.HandoffQueueEntry, error) {
	var out []model.HandoffQueueEntry
	err := q.db.WithContext(ctx).
		Where("assigned_staff_id = ? AND resolved_at IS NULL", staffID).
		Order(waitingOrder).
		Find(&out).Error
	return out, err
}

type Stats struct {
	WaitingCount       int64   `json:"waiting_count"`
	AssignedCount      int64   `json:"assigned_count"`
	AvgWaitTimeSeconds float64 `json:"avg_wait_time_seconds"`
}

func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	db := q.db.WithContext(ctx).Model(&model.HandoffQueueEntry{})
	if err := db.Session(&gorm.Session{}).
		Where("assigned_staff_id = '' AND resolved_at IS NULL").
		Count(&s.WaitingCount).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("assigned_staff_id <> '' AND resolved_at IS NULL").
		Count(&s.AssignedCount).Error; err != nil {
		return nil, err
	}
	// Average time-to-assignment over entries that did get assigned.
	var avg *float64
	err := q.db.WithContext(ctx).Model(&model.HandoffQueueEntry{}).
		Where("assigned_at IS NOT NULL").
		Select("AVG(EXTRACT(EPOCH FROM (assigned_at - enqueued_at)))").
		Scan(&avg).Error
	if err != nil {
		return nil, err
	}
	if avg != nil {
		s.AvgWaitTimeSeconds = *avg
	}
	return &s, nil
}
