// Package presence tracks staff online/availability state and workload for
// load-balanced auto-assignment.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/errs"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Tracker struct {
	db          *gorm.DB
	maxWorkload int
}

func NewTracker(db *gorm.DB, maxWorkload int) *Tracker {
	if maxWorkload <= 0 {
		maxWorkload = 5
	}
	return &Tracker{db: db, maxWorkload: maxWorkload}
}

// ensure creates the presence row lazily on the first presence-affecting
// call for a staff member. Rows are never deleted afterwards.
func (t *Tracker) ensure(ctx context.Context, staffID string) error {
	row := model.StaffPresence{
		StaffID:        staffID,
		Status:         model.StaffStatusOffline,
		MaxWorkload:    t.maxWorkload,
		LastSeenAt:     time.Now(),
		LastActivityAt: time.Now(),
	}
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "staff_id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("ensure presence %s: %w", staffID, err)
	}
	return nil
}

func (t *Tracker) SetOnline(ctx context.Context, staffID string, online bool) error {
	if err := t.ensure(ctx, staffID); err != nil {
		return err
	}
	status := model.StaffStatusOffline
	if online {
		status = model.StaffStatusAvailable
	}
	return t.db.WithContext(ctx).Model(&model.StaffPresence{}).
		Where("staff_id = ?", staffID).
		Updates(map[string]interface{}{
			"online":       online,
			"status":       status,
			"last_seen_at": time.Now(),
		}).Error
}

// Heartbeat refreshes liveness for staff that are currently online. A
// heartbeat from a logged-out client is ignored rather than reviving it;
// only a staff member with no presence row at all is an error.
func (t *Tracker) Heartbeat(ctx context.Context, staffID string) error {
	res := t.db.WithContext(ctx).Model(&model.StaffPresence{}).
		Where("staff_id = ? AND online", staffID).
		Update("last_seen_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := t.db.WithContext(ctx).Model(&model.StaffPresence{}).
			Where("staff_id = ?", staffID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errs.ErrStaffNotFound
		}
	}
	return nil
}

// IncrementWorkload bumps the counter and flips status to busy once the
// capacity is reached. Both statements are single-row atomic updates with
// their conditions in SQL, so concurrent calls cannot interleave badly.
func (t *Tracker) IncrementWorkload(ctx context.Context, staffID string) error {
	if err := t.ensure(ctx, staffID); err != nil {
		return err
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.StaffPresence{}).
			Where("staff_id = ?", staffID).
			Updates(map[string]interface{}{
				"workload":         gorm.Expr("workload + 1"),
				"last_activity_at": time.Now(),
			}).Error
		if err != nil {
			return err
		}
		// Only an available staff member flips to busy; a manually-set
		// status message state is left alone.
		return tx.Model(&model.StaffPresence{}).
			Where("staff_id = ? AND online AND status = ? AND workload >= max_workload", staffID, model.StaffStatusAvailable).
			Update("status", model.StaffStatusBusy).Error
	})
}

// DecrementWorkload lowers the counter (never below zero) and flips a busy
// online staff member back to available once below capacity.
func (t *Tracker) DecrementWorkload(ctx context.Context, staffID string) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.StaffPresence{}).
			Where("staff_id = ?", staffID).
			Updates(map[string]interface{}{
				"workload":         gorm.Expr("GREATEST(workload - 1, 0)"),
				"last_activity_at": time.Now(),
			}).Error
		if err != nil {
			return err
		}
		return tx.Model(&model.StaffPresence{}).
			Where("staff_id = ? AND online AND status = ? AND workload < max_workload", staffID, model.StaffStatusBusy).
			Update("status", model.StaffStatusAvailable).Error
	})
}

// GetAvailableStaff returns online, non-busy, under-capacity staff ordered by
// ascending workload. The ordering is the tie-break used by auto-assignment.
func (t *Tracker) GetAvailableStaff(ctx context.Context) ([]model.StaffPresence, error) {
	var out []model.StaffPresence
	err := t.db.WithContext(ctx).
		Where("online AND status <> ? AND workload < max_workload", model.StaffStatusBusy).
		Order("workload ASC, staff_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("available staff: %w", err)
	}
	return out, nil
}

func (t *Tracker) Get(ctx context.Context, staffID string) (*model.StaffPresence, error) {
	var row model.StaffPresence
	if err := t.db.WithContext(ctx).First(&row, "staff_id = ?", staffID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrStaffNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (t *Tracker) List(ctx context.Context) ([]model.StaffPresence, error) {
	var out []model.StaffPresence
	if err := t.db.WithContext(ctx).Order("staff_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SweepInactive forces offline any staff whose last heartbeat is older than
// the threshold. Idempotent: a second run matches no rows.
func (t *Tracker) SweepInactive(ctx context.Context, threshold time.Duration) (int64, error) {
	res := t.db.WithContext(ctx).Model(&model.StaffPresence{}).
		Where("online AND last_seen_at < ?", time.Now().Add(-threshold)).
		Updates(map[string]interface{}{
			"online": false,
			"status": model.StaffStatusOffline,
		})
	return res.RowsAffected, res.Error
}
