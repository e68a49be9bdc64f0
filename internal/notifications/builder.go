package notifications

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"gitlab.com/ranfdev/notifyd/internal/models"
)

// Builder assembles a notification field by field.
// The first setter error is kept and returned by Build.
type Builder struct {
	n   models.Notification
	err error
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) From(id int64) *Builder {
	b.n.FromID = id
	return b
}

func (b *Builder) To(id int64) *Builder {
	b.n.ToID = id
	return b
}

// Category makes this a direct notification rendered with the given
// category template.
func (b *Builder) Category(id int64) *Builder {
	b.n.Category = models.KindCategory
	b.n.CategoryID = id
	return b
}

// Broadcast makes this a broadcast rendered with the given broadcast
// template.
func (b *Builder) Broadcast(id int64) *Builder {
	b.n.Category = models.KindBroadcast
	b.n.CategoryID = id
	return b
}

func (b *Builder) URL(url string) *Builder {
	b.n.URL = url
	return b
}

func (b *Builder) ExtraTitle(values map[string]any) *Builder {
	b.n.ExtraTitle = b.marshal("extra_title", values)
	return b
}

func (b *Builder) ExtraContent(values map[string]any) *Builder {
	b.n.ExtraContent = b.marshal("extra_content", values)
	return b
}

func (b *Builder) Stack(id int64) *Builder {
	b.n.StackID = sql.NullInt64{Int64: id, Valid: true}
	return b
}

func (b *Builder) marshal(field string, values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("%w: %s: %w", ErrInvalidNotification, field, err)
	}
	return string(data)
}

func (b *Builder) Build() (models.Notification, error) {
	if b.err != nil {
		return models.Notification{}, b.err
	}
	n := b.n
	if err := Validate(n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// BuildMultiple fans the notification out to every recipient.
func (b *Builder) BuildMultiple(toIDs []int64) ([]models.Notification, error) {
	if len(toIDs) == 0 {
		return nil, &MissingFieldsError{Fields: []string{"to_id"}}
	}
	ns := make([]models.Notification, 0, len(toIDs))
	for _, id := range toIDs {
		n, err := b.To(id).Build()
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return ns, nil
}

// Validate checks the required fields of n. Ids are positive, so a zero
// id counts as missing.
func Validate(n models.Notification) error {
	missing := []string{}
	if n.FromID <= 0 {
		missing = append(missing, "from_id")
	}
	if n.ToID <= 0 {
		missing = append(missing, "to_id")
	}
	if n.CategoryID <= 0 {
		missing = append(missing, "category_id")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	if n.Category != models.KindCategory && n.Category != models.KindBroadcast {
		return fmt.Errorf("%w: unknown category kind %d", ErrInvalidNotification, n.Category)
	}
	return nil
}
