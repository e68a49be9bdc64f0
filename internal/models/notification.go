package models

import (
	"database/sql"
	"time"
)

// Kind discriminates direct (category) notifications from broadcasts.
type Kind int

const (
	KindCategory  Kind = 0
	KindBroadcast Kind = 1
)

func (k Kind) String() string {
	if k == KindBroadcast {
		return "broadcast"
	}
	return "category"
}

// Notification is a row of the user_notifications table.
type Notification struct {
	ID           int64         `db:"id" json:"id"`
	FromID       int64         `db:"from_id" json:"from_id"`
	ToID         int64         `db:"to_id" json:"to_id"`
	Category     Kind          `db:"category" json:"category"`
	CategoryID   int64         `db:"category_id" json:"category_id"`
	ExtraTitle   string        `db:"extra_title" json:"extra_title"`
	ExtraContent string        `db:"extra_content" json:"extra_content"`
	URL          string        `db:"url" json:"url"`
	Read         bool          `db:"read" json:"read"`
	StackID      sql.NullInt64 `db:"stack_id" json:"-"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// NotifView is what readers get back: the parsed notification restricted
// to the cached field set.
type NotifView struct {
	ID        int64     `json:"id"`
	FromID    int64     `json:"from_id"`
	ToID      int64     `json:"to_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	URL       string    `json:"url"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Template is the title/content pattern of a category or broadcast.
type Template struct {
	ID      int64  `db:"id"`
	Kind    Kind   `db:"kind"`
	Name    string `db:"name"`
	Title   string `db:"title"`
	Content string `db:"content"`
}
