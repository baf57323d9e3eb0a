package errs

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrStaffNotFound        = errors.New("staff not found")
	ErrQueueEntryNotFound   = errors.New("queue entry not found")
	ErrNotAssigned          = errors.New("conversation is not assigned to this staff member")
)
