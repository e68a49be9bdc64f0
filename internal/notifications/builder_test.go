package notifications

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gitlab.com/ranfdev/notifyd/internal/models"
)

func TestBuilder(t *testing.T) {
	require := require.New(t)
	n, err := NewBuilder().
		From(1).
		To(7).
		Category(2).
		URL("https://example.com").
		ExtraTitle(map[string]any{"user.name": "Pippo"}).
		Stack(9).
		Build()
	require.Nil(err)
	require.Equal(int64(1), n.FromID)
	require.Equal(int64(7), n.ToID)
	require.Equal(models.KindCategory, n.Category)
	require.Equal(int64(2), n.CategoryID)
	require.Equal("https://example.com", n.URL)
	require.Equal("Pippo", gjson.Get(n.ExtraTitle, `user\.name`).String())
	require.True(n.StackID.Valid)
	require.Equal(int64(9), n.StackID.Int64)
	require.Empty(n.ExtraContent)
}

func TestBuilderRequiredFields(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().To(7).Build()
	require.True(errors.Is(err, ErrInvalidNotification))
	var missing *MissingFieldsError
	require.True(errors.As(err, &missing))
	require.Equal([]string{"from_id", "category_id"}, missing.Fields)

	_, err = NewBuilder().From(1).Broadcast(1).BuildMultiple(nil)
	require.True(errors.Is(err, ErrInvalidNotification))
}

func TestBuilderBadExtra(t *testing.T) {
	_, err := NewBuilder().From(1).To(7).Category(1).
		ExtraContent(map[string]any{"bad": make(chan int)}).
		Build()
	require.True(t, errors.Is(err, ErrInvalidNotification))
}

func TestBuildMultiple(t *testing.T) {
	require := require.New(t)
	ns, err := NewBuilder().From(1).Broadcast(2).BuildMultiple([]int64{7, 8})
	require.Nil(err)
	require.Len(ns, 2)
	require.Equal(int64(7), ns[0].ToID)
	require.Equal(int64(8), ns[1].ToID)
	for _, n := range ns {
		require.Equal(models.KindBroadcast, n.Category)
		require.Equal(int64(2), n.CategoryID)
	}
}

func TestValidate(t *testing.T) {
	require := require.New(t)
	require.Nil(Validate(models.Notification{FromID: 1, ToID: 2, CategoryID: 3}))
	require.Error(Validate(models.Notification{FromID: 1, ToID: 2, CategoryID: 3, Category: 5}))
}
