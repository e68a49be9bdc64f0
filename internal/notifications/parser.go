package notifications

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
)

// placeholderRule matches {@name@}.
var placeholderRule = regexp.MustCompile(`\{@(.+?)@\}`)

const userPrefix = "user."

var ErrUnresolvedPlaceholder = fmt.Errorf("%w: unresolved placeholder", ErrInvalidNotification)

type templateKey struct {
	kind models.Kind
	id   int64
}

// TemplateParser renders a notification through the title/content template
// of its category or broadcast. Values for {@user.xxx@} placeholders come
// from the JSON stored in extra_title and extra_content.
type TemplateParser struct {
	strict    bool
	templates map[templateKey]models.Template
}

var _ domain.Parser = (*TemplateParser)(nil)

func NewTemplateParser(templates []models.Template, strict bool) *TemplateParser {
	p := &TemplateParser{
		strict:    strict,
		templates: make(map[templateKey]models.Template, len(templates)),
	}
	for _, t := range templates {
		p.templates[templateKey{t.Kind, t.ID}] = t
	}
	return p
}

// LoadTemplateParser reads every category and broadcast template once.
// The tables are small and rarely change.
func LoadTemplateParser(ctx context.Context, store domain.Store, strict bool) (*TemplateParser, error) {
	all := []models.Template{}
	for _, kind := range []models.Kind{models.KindCategory, models.KindBroadcast} {
		ts, err := store.ListTemplates(ctx, kind)
		if err != nil {
			return nil, err
		}
		all = append(all, ts...)
	}
	return NewTemplateParser(all, strict), nil
}

func (p *TemplateParser) Parse(n models.Notification) (models.NotifView, error) {
	view := models.NotifView{
		ID:        n.ID,
		FromID:    n.FromID,
		ToID:      n.ToID,
		Title:     n.ExtraTitle,
		Content:   n.ExtraContent,
		URL:       n.URL,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UTC(),
	}
	t, ok := p.templates[templateKey{n.Category, n.CategoryID}]
	if !ok {
		return view, nil
	}

	var err error
	if view.Title, err = p.render(t.Title, n.ExtraTitle); err != nil {
		return models.NotifView{}, fmt.Errorf("notification %d title: %w", n.ID, err)
	}
	if view.Content, err = p.render(t.Content, n.ExtraContent); err != nil {
		return models.NotifView{}, fmt.Errorf("notification %d content: %w", n.ID, err)
	}
	return view, nil
}

func (p *TemplateParser) render(body, extra string) (string, error) {
	var firstErr error
	out := placeholderRule.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderRule.FindStringSubmatch(match)[1]
		if !strings.HasPrefix(name, userPrefix) {
			return match
		}
		value, found := lookupExtra(extra, name)
		if !found && p.strict && firstErr == nil {
			firstErr = fmt.Errorf("%w %q", ErrUnresolvedPlaceholder, name)
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// lookupExtra resolves name first as a flat key ("user.name": ...) and then
// as a nested path ({"user": {"name": ...}}).
func lookupExtra(extra, name string) (string, bool) {
	if !gjson.Valid(extra) {
		return "", false
	}
	escaped := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(name)
	res := gjson.Get(extra, escaped)
	if !res.Exists() {
		res = gjson.Get(extra, name)
	}
	if !res.Exists() || res.String() == "" {
		return "", false
	}
	return res.String(), true
}
