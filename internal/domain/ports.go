package domain

import (
	"context"
	"errors"
	"time"

	"gitlab.com/ranfdev/notifyd/internal/models"
)

// ErrNotFound is shared by every layer, so errors.Is works end to end.
var ErrNotFound = errors.New("Notification not found")

// Store is the durable source of truth for notifications.
// Find returns an error wrapping ErrNotFound when the row doesn't exist.
type Store interface {
	Find(ctx context.Context, id int64) (*models.Notification, error)
	ReadOne(ctx context.Context, id int64) (int64, error)
	ReadAll(ctx context.Context, toID int64) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	DeleteAll(ctx context.Context, toID int64) (int64, error)
	GetAll(ctx context.Context, toID int64) ([]models.Notification, error)
	GetNotRead(ctx context.Context, toID int64) ([]int64, error)
	StoreSingle(ctx context.Context, n models.Notification) (int64, error)
	// StoreMultiple inserts all rows in one transaction; the returned ids
	// match the input positionally.
	StoreMultiple(ctx context.Context, ns []models.Notification) ([]int64, error)
	ListTemplates(ctx context.Context, kind models.Kind) ([]models.Template, error)
}

// State tells apart a cold cache entry from a confirmed negative one.
type State int

const (
	// StateUnknown: nothing cached, ask the store.
	StateUnknown State = iota
	// StateAbsent: a sentinel is cached, the store has nothing either.
	StateAbsent
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	}
	return "unknown"
}

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Cache is the denormalized read model kept next to the Store.
type Cache interface {
	Find(ctx context.Context, id int64) (models.NotifView, State, error)
	FlushOne(ctx context.Context, view models.NotifView) error
	FlushSentinel(ctx context.Context, id int64) error
	FlushMultiple(ctx context.Context, views []models.NotifView) error
	// Evict drops a message record, including a sentinel.
	Evict(ctx context.Context, id int64) error
	ReadOne(ctx context.Context, view models.NotifView) error
	ReadAll(ctx context.Context, toID int64) (failed []int64, err error)
	Delete(ctx context.Context, view models.NotifView) error
	DeleteAll(ctx context.Context, toID int64) error

	GetAllSet(ctx context.Context, toID int64, limit, page int, order Order) ([]int64, State, error)
	FlushAllSet(ctx context.Context, toID int64, ids []int64) error
	AddAllSet(ctx context.Context, toID, id int64) (bool, error)

	CountNotRead(ctx context.Context, toID int64) (int64, State, error)
	FlushNoReadSet(ctx context.Context, toID int64, ids []int64) error
	AddNoReadSet(ctx context.Context, toID, id int64) (bool, error)
}

// Parser renders the placeholder values of a row into readable text.
type Parser interface {
	Parse(n models.Notification) (models.NotifView, error)
}

// TTLs of the three cache structures. They expire independently.
type TTLs struct {
	Message   time.Duration
	AllSet    time.Duration
	UnreadSet time.Duration
}
