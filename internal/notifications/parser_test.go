package notifications

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/ranfdev/notifyd/internal/models"
)

func TestParse(t *testing.T) {
	require := require.New(t)
	p := NewTemplateParser([]models.Template{
		{ID: 1, Kind: models.KindCategory, Title: "Reply from {@user.name@}", Content: "{@user.name@} said {@user.thread.excerpt@} {@system.secret@}"},
		{ID: 1, Kind: models.KindBroadcast, Title: "Broadcast", Content: "{@user.name@} everyone"},
	}, false)

	n := models.Notification{
		ID:           5,
		ToID:         7,
		FromID:       1,
		Category:     models.KindCategory,
		CategoryID:   1,
		ExtraTitle:   `{"user.name":"Pippo"}`,
		ExtraContent: `{"user.name":"Pippo","user":{"thread":{"excerpt":"hi"}}}`,
	}
	view, err := p.Parse(n)
	require.Nil(err)
	require.Equal("Reply from Pippo", view.Title)
	// Only user.* placeholders are substituted
	require.Equal("Pippo said hi {@system.secret@}", view.Content)
	require.Equal(int64(7), view.ToID)

	n.Category = models.KindBroadcast
	view, err = p.Parse(n)
	require.Nil(err)
	require.Equal("Pippo everyone", view.Content)
}

func TestParseMissingTemplate(t *testing.T) {
	require := require.New(t)
	p := NewTemplateParser(nil, true)
	n := models.Notification{CategoryID: 42, ExtraTitle: "raw title", ExtraContent: "raw content"}
	view, err := p.Parse(n)
	require.Nil(err)
	require.Equal("raw title", view.Title)
	require.Equal("raw content", view.Content)
}

func TestParseStrict(t *testing.T) {
	require := require.New(t)
	templates := []models.Template{{ID: 1, Title: "Hi {@user.name@}", Content: ""}}
	n := models.Notification{CategoryID: 1, ExtraTitle: `{"user.other":"x"}`}

	view, err := NewTemplateParser(templates, false).Parse(n)
	require.Nil(err)
	require.Equal("Hi ", view.Title)

	_, err = NewTemplateParser(templates, true).Parse(n)
	require.True(errors.Is(err, ErrUnresolvedPlaceholder))
	require.True(errors.Is(err, ErrInvalidNotification))

	// Not JSON at all
	n.ExtraTitle = "plain"
	_, err = NewTemplateParser(templates, true).Parse(n)
	require.Error(err)
}
