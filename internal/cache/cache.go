// Package cache keeps the denormalized Redis read model of notifications:
// one hash per message, a sorted set of all ids and a set of unread ids per
// recipient. A member or field holding "nil" records a confirmed miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
)

// markRead only touches hashes that still exist, so an expired record is
// never resurrected as a partial hash without a TTL.
var markRead = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'read', '1')
return 1
`)

var addToZSet = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

var addToSet = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('SREM', KEYS[1], ARGV[3])
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

type NotificationCache struct {
	rdb redis.UniversalClient
	ttl domain.TTLs
}

var _ domain.Cache = (*NotificationCache)(nil)

func New(rdb redis.UniversalClient, ttl domain.TTLs) *NotificationCache {
	return &NotificationCache{rdb: rdb, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("Failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (c *NotificationCache) Find(ctx context.Context, id int64) (models.NotifView, domain.State, error) {
	key := MsgKey(id)
	vals, err := c.rdb.HMGet(ctx, key, msgFields...).Result()
	if err != nil {
		return models.NotifView{}, domain.StateUnknown, fmt.Errorf("reading %s: %w", key, err)
	}
	fields := map[string]string{}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			fields[msgFields[i]] = s
		}
	}
	if len(fields) == 0 {
		return models.NotifView{}, domain.StateUnknown, nil
	}
	if fields[exField] == sentinel {
		return models.NotifView{}, domain.StateAbsent, nil
	}
	view, err := decodeView(fields)
	if err != nil {
		return models.NotifView{}, domain.StateUnknown, fmt.Errorf("decoding %s: %w", key, err)
	}
	return view, domain.StatePresent, nil
}

func (c *NotificationCache) FlushOne(ctx context.Context, view models.NotifView) error {
	key := MsgKey(view.ID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeView(view))
		pipe.Expire(ctx, key, c.ttl.Message)
		return nil
	})
	if err != nil {
		return fmt.Errorf("flushing %s: %w", key, err)
	}
	return nil
}

func (c *NotificationCache) FlushSentinel(ctx context.Context, id int64) error {
	key := MsgKey(id)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "id", strconv.FormatInt(id, 10), exField, sentinel)
		pipe.Expire(ctx, key, c.ttl.Message)
		return nil
	})
	if err != nil {
		return fmt.Errorf("flushing sentinel %s: %w", key, err)
	}
	return nil
}

func (c *NotificationCache) FlushMultiple(ctx context.Context, views []models.NotifView) error {
	var errs []error
	for _, view := range views {
		if err := c.FlushOne(ctx, view); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Evict drops the message hash, sentinel or not.
func (c *NotificationCache) Evict(ctx context.Context, id int64) error {
	key := MsgKey(id)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("evicting %s: %w", key, err)
	}
	return nil
}

func (c *NotificationCache) ReadOne(ctx context.Context, view models.NotifView) error {
	noread := NoReadSetKey(view.ToID)
	if err := c.rdb.SRem(ctx, noread, view.ID).Err(); err != nil {
		return fmt.Errorf("removing %d from %s: %w", view.ID, noread, err)
	}
	key := MsgKey(view.ID)
	if err := markRead.Run(ctx, c.rdb, []string{key}).Err(); err != nil {
		return fmt.Errorf("marking %s read: %w", key, err)
	}
	return nil
}

// ReadAll drops the unread set and flags every cached message of the
// recipient as read. Ids whose hash could not be updated are returned.
func (c *NotificationCache) ReadAll(ctx context.Context, toID int64) ([]int64, error) {
	noread := NoReadSetKey(toID)
	if err := c.rdb.Del(ctx, noread).Err(); err != nil {
		return nil, fmt.Errorf("deleting %s: %w", noread, err)
	}
	allKey := AllSetKey(toID)
	members, err := c.rdb.ZRange(ctx, allKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", allKey, err)
	}
	failed := []int64{}
	for _, id := range parseIDs(members) {
		if err := markRead.Run(ctx, c.rdb, []string{MsgKey(id)}).Err(); err != nil {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

func (c *NotificationCache) Delete(ctx context.Context, view models.NotifView) error {
	var errs []error
	key := MsgKey(view.ID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		errs = append(errs, fmt.Errorf("deleting %s: %w", key, err))
	}
	allKey := AllSetKey(view.ToID)
	if err := c.rdb.ZRem(ctx, allKey, view.ID).Err(); err != nil {
		errs = append(errs, fmt.Errorf("removing %d from %s: %w", view.ID, allKey, err))
	}
	noread := NoReadSetKey(view.ToID)
	if err := c.rdb.SRem(ctx, noread, view.ID).Err(); err != nil {
		errs = append(errs, fmt.Errorf("removing %d from %s: %w", view.ID, noread, err))
	}
	return errors.Join(errs...)
}

func (c *NotificationCache) DeleteAll(ctx context.Context, toID int64) error {
	allKey := AllSetKey(toID)
	members, err := c.rdb.ZRange(ctx, allKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("listing %s: %w", allKey, err)
	}
	keys := []string{}
	for _, id := range parseIDs(members) {
		keys = append(keys, MsgKey(id))
	}
	keys = append(keys, allKey, NoReadSetKey(toID))
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting cache of user %d: %w", toID, err)
	}
	return nil
}

// GetAllSet returns one page of the recipient's ids. A limit <= 0 returns
// every id.
func (c *NotificationCache) GetAllSet(ctx context.Context, toID int64, limit, page int, order domain.Order) ([]int64, domain.State, error) {
	key := AllSetKey(toID)
	start, stop := pageRange(limit, page)

	var exists *redis.IntCmd
	var score *redis.FloatCmd
	var ids *redis.StringSliceCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, key)
		score = pipe.ZScore(ctx, key, sentinel)
		if order == domain.OrderAsc {
			ids = pipe.ZRange(ctx, key, start, stop)
		} else {
			ids = pipe.ZRevRange(ctx, key, start, stop)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.StateUnknown, fmt.Errorf("reading %s: %w", key, err)
	}
	if exists.Val() == 0 {
		return nil, domain.StateUnknown, nil
	}
	if score.Err() == nil {
		return nil, domain.StateAbsent, nil
	}
	return parseIDs(ids.Val()), domain.StatePresent, nil
}

func (c *NotificationCache) FlushAllSet(ctx context.Context, toID int64, ids []int64) error {
	key := AllSetKey(toID)
	members := []redis.Z{}
	for _, id := range ids {
		members = append(members, redis.Z{Score: float64(id), Member: id})
	}
	if len(members) == 0 {
		members = append(members, redis.Z{Score: 0, Member: sentinel})
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, c.ttl.AllSet)
		return nil
	})
	if err != nil {
		return fmt.Errorf("flushing %s: %w", key, err)
	}
	return nil
}

// AddAllSet reports false when the set is cold; the next read rebuilds it.
func (c *NotificationCache) AddAllSet(ctx context.Context, toID, id int64) (bool, error) {
	key := AllSetKey(toID)
	n, err := addToZSet.Run(ctx, c.rdb, []string{key}, id, seconds(c.ttl.AllSet), sentinel).Int()
	if err != nil {
		return false, fmt.Errorf("adding %d to %s: %w", id, key, err)
	}
	return n == 1, nil
}

func (c *NotificationCache) CountNotRead(ctx context.Context, toID int64) (int64, domain.State, error) {
	key := NoReadSetKey(toID)
	var card *redis.IntCmd
	var hasSentinel *redis.BoolCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.SCard(ctx, key)
		hasSentinel = pipe.SIsMember(ctx, key, sentinel)
		return nil
	})
	if err != nil {
		return 0, domain.StateUnknown, fmt.Errorf("counting %s: %w", key, err)
	}
	count := card.Val()
	if count == 0 {
		return 0, domain.StateUnknown, nil
	}
	if hasSentinel.Val() {
		count--
		if count == 0 {
			return 0, domain.StateAbsent, nil
		}
	}
	return count, domain.StatePresent, nil
}

func (c *NotificationCache) FlushNoReadSet(ctx context.Context, toID int64, ids []int64) error {
	key := NoReadSetKey(toID)
	members := []interface{}{}
	for _, id := range ids {
		members = append(members, id)
	}
	if len(members) == 0 {
		members = append(members, sentinel)
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, c.ttl.UnreadSet)
		return nil
	})
	if err != nil {
		return fmt.Errorf("flushing %s: %w", key, err)
	}
	return nil
}

func (c *NotificationCache) AddNoReadSet(ctx context.Context, toID, id int64) (bool, error) {
	key := NoReadSetKey(toID)
	n, err := addToSet.Run(ctx, c.rdb, []string{key}, id, seconds(c.ttl.UnreadSet), sentinel).Int()
	if err != nil {
		return false, fmt.Errorf("adding %d to %s: %w", id, key, err)
	}
	return n == 1, nil
}

func seconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

func parseIDs(members []string) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			// sentinel or garbage
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// pageRange converts limit and page into inclusive ZRANGE bounds. Pages
// past the largest representable offset map to an empty range.
func pageRange(limit, page int) (start, stop int64) {
	if limit <= 0 {
		return 0, -1
	}
	if page < 1 {
		page = 1
	}
	l, p := int64(limit), int64(page-1)
	if p > (math.MaxInt64-l)/l {
		return math.MaxInt64, math.MaxInt64
	}
	start = p * l
	return start, start + l - 1
}

func encodeView(v models.NotifView) map[string]interface{} {
	read := "0"
	if v.Read {
		read = "1"
	}
	return map[string]interface{}{
		"id":            strconv.FormatInt(v.ID, 10),
		"extra_title":   v.Title,
		"extra_content": v.Content,
		"to_id":         strconv.FormatInt(v.ToID, 10),
		"from_id":       strconv.FormatInt(v.FromID, 10),
		"read":          read,
		"created_at":    v.CreatedAt.UTC().Format(time.RFC3339Nano),
		"url":           v.URL,
	}
}

func decodeView(fields map[string]string) (models.NotifView, error) {
	var v models.NotifView
	var err error
	if v.ID, err = strconv.ParseInt(fields["id"], 10, 64); err != nil {
		return v, fmt.Errorf("field id: %w", err)
	}
	if v.ToID, err = strconv.ParseInt(fields["to_id"], 10, 64); err != nil {
		return v, fmt.Errorf("field to_id: %w", err)
	}
	if v.FromID, err = strconv.ParseInt(fields["from_id"], 10, 64); err != nil {
		return v, fmt.Errorf("field from_id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return v, fmt.Errorf("field created_at: %w", err)
	}
	v.CreatedAt = createdAt.UTC()
	v.Read = fields["read"] == "1"
	v.Title = fields["extra_title"]
	v.Content = fields["extra_content"]
	v.URL = fields["url"]
	return v, nil
}
