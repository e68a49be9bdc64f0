package notifications

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/ranfdev/notifyd/internal/domain"
)

var ErrNotFound = domain.ErrNotFound
var ErrOperationFailed = errors.New("Operation failed")
var ErrInvalidNotification = errors.New("Invalid notification")

func opFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrOperationFailed, op, err)
}

// CacheSyncError describes a cache write-back that failed after the store
// already committed. It is logged, never returned.
type CacheSyncError struct {
	Op  string
	IDs []int64
	Err error
}

func (e *CacheSyncError) Error() string {
	ids := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("cache sync %s [%s]: %v", e.Op, strings.Join(ids, ","), e.Err)
}

func (e *CacheSyncError) Unwrap() error {
	return e.Err
}

// MissingFieldsError lists the required fields a notification lacks.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrInvalidNotification
}
