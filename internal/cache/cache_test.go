package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testTTLs = domain.TTLs{
	Message:   12 * time.Hour,
	AllSet:    6 * time.Hour,
	UnreadSet: 6 * time.Hour,
}

func newTestCache(t *testing.T) (*NotificationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, testTTLs), mr
}

func mockView(id, toID int64) models.NotifView {
	return models.NotifView{
		ID:        id,
		FromID:    1,
		ToID:      toID,
		Title:     "New follower",
		Content:   "Pippo started following you",
		URL:       "https://example.com/u/pippo",
		CreatedAt: time.Unix(1700000000, 316885539).UTC(),
	}
}

func TestFindRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, state, err := c.Find(ctx, 10)
	require.Nil(err)
	require.Equal(domain.StateUnknown, state)

	view := mockView(10, 7)
	require.Nil(c.FlushOne(ctx, view))
	got, state, err := c.Find(ctx, 10)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Equal(view, got)
	require.Equal(testTTLs.Message, mr.TTL(MsgKey(10)))

	fields, err := mr.HKeys(MsgKey(10))
	require.Nil(err)
	require.ElementsMatch(msgFields[:len(msgFields)-1], fields)
}

func TestSentinel(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.Nil(c.FlushSentinel(ctx, 99))
	_, state, err := c.Find(ctx, 99)
	require.Nil(err)
	require.Equal(domain.StateAbsent, state)

	// A real record replaces the sentinel entirely
	require.Nil(c.FlushOne(ctx, mockView(99, 7)))
	_, state, err = c.Find(ctx, 99)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)

	require.Nil(c.FlushSentinel(ctx, 99))
	require.Nil(c.Evict(ctx, 99))
	_, state, err = c.Find(ctx, 99)
	require.Nil(err)
	require.Equal(domain.StateUnknown, state)
}

func TestFindCorrupted(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	mr.HSet(MsgKey(5), "id", "five")
	_, state, err := c.Find(ctx, 5)
	require.Error(err)
	require.Equal(domain.StateUnknown, state)
}

func TestAllSetPaging(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, state, err := c.GetAllSet(ctx, 7, 2, 1, domain.OrderDesc)
	require.Nil(err)
	require.Equal(domain.StateUnknown, state)

	require.Nil(c.FlushAllSet(ctx, 7, []int64{10, 11, 12, 13}))
	require.Equal(testTTLs.AllSet, mr.TTL(AllSetKey(7)))

	ids, state, err := c.GetAllSet(ctx, 7, 2, 1, domain.OrderDesc)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Equal([]int64{13, 12}, ids)

	ids, _, err = c.GetAllSet(ctx, 7, 2, 2, domain.OrderDesc)
	require.Nil(err)
	require.Equal([]int64{11, 10}, ids)

	ids, _, err = c.GetAllSet(ctx, 7, 3, 1, domain.OrderAsc)
	require.Nil(err)
	require.Equal([]int64{10, 11, 12}, ids)

	ids, _, err = c.GetAllSet(ctx, 7, 0, 0, domain.OrderDesc)
	require.Nil(err)
	require.Equal([]int64{13, 12, 11, 10}, ids)

	ids, state, err = c.GetAllSet(ctx, 7, 2, 5, domain.OrderDesc)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Empty(ids)

	// (page-1)*limit does not fit in an int64
	ids, state, err = c.GetAllSet(ctx, 7, 4, 1<<62+1, domain.OrderDesc)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Empty(ids)
}

func TestPageRange(t *testing.T) {
	require := require.New(t)
	cases := []struct {
		limit, page int
		start, stop int64
	}{
		{0, 3, 0, -1},
		{2, 0, 0, 1},
		{2, 3, 4, 5},
		{4, 1<<62 + 1, math.MaxInt64, math.MaxInt64},
		{math.MaxInt64, 2, math.MaxInt64, math.MaxInt64},
	}
	for _, c := range cases {
		start, stop := pageRange(c.limit, c.page)
		require.Equal(c.start, start, "limit %d page %d", c.limit, c.page)
		require.Equal(c.stop, stop, "limit %d page %d", c.limit, c.page)
	}
}

func TestCreatedAtPrecision(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, _ := newTestCache(t)

	view := mockView(10, 7)
	view.CreatedAt = time.Date(2024, 3, 1, 13, 22, 17, 316885539, time.FixedZone("CET", 3600))
	require.Nil(c.FlushOne(ctx, view))
	got, state, err := c.Find(ctx, 10)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Equal(view.CreatedAt.UTC(), got.CreatedAt)
}

func TestAllSetSentinel(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.Nil(c.FlushAllSet(ctx, 7, nil))
	ids, state, err := c.GetAllSet(ctx, 7, 10, 1, domain.OrderDesc)
	require.Nil(err)
	require.Equal(domain.StateAbsent, state)
	require.Empty(ids)

	// Adding clears the sentinel
	ok, err := c.AddAllSet(ctx, 7, 20)
	require.Nil(err)
	require.True(ok)
	ids, state, err = c.GetAllSet(ctx, 7, 10, 1, domain.OrderDesc)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Equal([]int64{20}, ids)
}

func TestAddToColdSet(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	ok, err := c.AddAllSet(ctx, 7, 20)
	require.Nil(err)
	require.False(ok)
	require.False(mr.Exists(AllSetKey(7)))

	ok, err = c.AddNoReadSet(ctx, 7, 20)
	require.Nil(err)
	require.False(ok)
	require.False(mr.Exists(NoReadSetKey(7)))
}

func TestCountNotRead(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, _ := newTestCache(t)

	_, state, err := c.CountNotRead(ctx, 7)
	require.Nil(err)
	require.Equal(domain.StateUnknown, state)

	require.Nil(c.FlushNoReadSet(ctx, 7, nil))
	count, state, err := c.CountNotRead(ctx, 7)
	require.Nil(err)
	require.Equal(domain.StateAbsent, state)
	require.Equal(int64(0), count)

	ok, err := c.AddNoReadSet(ctx, 7, 3)
	require.Nil(err)
	require.True(ok)
	count, state, err = c.CountNotRead(ctx, 7)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Equal(int64(1), count)

	require.Nil(c.FlushNoReadSet(ctx, 7, []int64{1, 2, 3}))
	count, state, err = c.CountNotRead(ctx, 7)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
	require.Equal(int64(3), count)
}

func TestReadOne(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	view := mockView(10, 7)
	require.Nil(c.FlushOne(ctx, view))
	require.Nil(c.FlushNoReadSet(ctx, 7, []int64{10, 11}))

	require.Nil(c.ReadOne(ctx, view))
	got, _, err := c.Find(ctx, 10)
	require.Nil(err)
	require.True(got.Read)
	count, _, err := c.CountNotRead(ctx, 7)
	require.Nil(err)
	require.Equal(int64(1), count)

	// No partial hash is created for an uncached message
	require.Nil(c.ReadOne(ctx, mockView(11, 7)))
	require.False(mr.Exists(MsgKey(11)))
}

func TestReadAll(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.Nil(c.FlushMultiple(ctx, []models.NotifView{mockView(10, 7), mockView(11, 7)}))
	require.Nil(c.FlushAllSet(ctx, 7, []int64{10, 11, 12}))
	require.Nil(c.FlushNoReadSet(ctx, 7, []int64{10, 11, 12}))

	failed, err := c.ReadAll(ctx, 7)
	require.Nil(err)
	require.Empty(failed)
	require.False(mr.Exists(NoReadSetKey(7)))
	for _, id := range []int64{10, 11} {
		got, state, err := c.Find(ctx, id)
		require.Nil(err)
		require.Equal(domain.StatePresent, state)
		require.True(got.Read)
	}
	require.False(mr.Exists(MsgKey(12)))
}

func TestDelete(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, _ := newTestCache(t)

	view := mockView(10, 7)
	require.Nil(c.FlushOne(ctx, view))
	require.Nil(c.FlushAllSet(ctx, 7, []int64{10, 11}))
	require.Nil(c.FlushNoReadSet(ctx, 7, []int64{10, 11}))

	require.Nil(c.Delete(ctx, view))
	_, state, err := c.Find(ctx, 10)
	require.Nil(err)
	require.Equal(domain.StateUnknown, state)
	ids, _, err := c.GetAllSet(ctx, 7, 0, 0, domain.OrderDesc)
	require.Nil(err)
	require.Equal([]int64{11}, ids)
	count, _, err := c.CountNotRead(ctx, 7)
	require.Nil(err)
	require.Equal(int64(1), count)
}

func TestDeleteAll(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.Nil(c.FlushMultiple(ctx, []models.NotifView{mockView(10, 7), mockView(11, 7)}))
	require.Nil(c.FlushOne(ctx, mockView(30, 8)))
	require.Nil(c.FlushAllSet(ctx, 7, []int64{10, 11}))
	require.Nil(c.FlushNoReadSet(ctx, 7, []int64{10}))

	require.Nil(c.DeleteAll(ctx, 7))
	require.False(mr.Exists(MsgKey(10)))
	require.False(mr.Exists(MsgKey(11)))
	require.False(mr.Exists(AllSetKey(7)))
	require.False(mr.Exists(NoReadSetKey(7)))
	require.True(mr.Exists(MsgKey(30)))
}

func TestExpiry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.Nil(c.FlushOne(ctx, mockView(10, 7)))
	require.Nil(c.FlushAllSet(ctx, 7, []int64{10}))
	mr.FastForward(7 * time.Hour)

	_, state, err := c.GetAllSet(ctx, 7, 0, 0, domain.OrderDesc)
	require.Nil(err)
	require.Equal(domain.StateUnknown, state)
	_, state, err = c.Find(ctx, 10)
	require.Nil(err)
	require.Equal(domain.StatePresent, state)
}
