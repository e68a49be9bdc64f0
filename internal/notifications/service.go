// Package notifications implements the cache-aside read path, the
// store-first write path and the per-user handle on top of them.
//
// The store is authoritative. Cache failures are logged and absorbed;
// store failures are returned.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
	"golang.org/x/sync/singleflight"
)

// Page selects a slice of a recipient's notifications ordered by id.
// A Limit <= 0 selects everything.
type Page struct {
	Limit int
	Page  int
	Order domain.Order
}

// Filter projects each returned view. Identity when nil.
type Filter func(models.NotifView) models.NotifView

// Manager serves reads and mutations of stored notifications.
type Manager struct {
	store  domain.Store
	cache  domain.Cache
	parser domain.Parser
	log    zerolog.Logger
	flight singleflight.Group
}

func NewManager(store domain.Store, cache domain.Cache, parser domain.Parser, log zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		cache:  cache,
		parser: parser,
		log:    log,
	}
}

// Flight keys mirror the cache keys they rebuild. Shared loads run detached
// from the first caller's cancellation.
func msgFlight(id int64) string      { return fmt.Sprintf("msg:%d", id) }
func allSetFlight(toID int64) string { return fmt.Sprintf("user:%d:msg", toID) }
func noReadFlight(toID int64) string { return fmt.Sprintf("user:%d:msg:noread", toID) }

func (m *Manager) cacheMiss(err error, op string, id int64) {
	m.log.Warn().Err(err).Str("op", op).Int64("id", id).Msg("cache read failed, falling back to store")
}

func (m *Manager) syncFailed(op string, toID int64, ids []int64, err error) {
	syncErr := &CacheSyncError{Op: op, IDs: ids, Err: err}
	m.log.Error().
		Err(syncErr).
		Str("op", op).
		Int64("to_id", toID).
		Ints64("ids", ids).
		Msg("cache out of sync with store")
}

func (m *Manager) Find(ctx context.Context, id int64) (models.NotifView, error) {
	view, state, err := m.cache.Find(ctx, id)
	if err != nil {
		m.cacheMiss(err, "find", id)
		state = domain.StateUnknown
	}
	switch state {
	case domain.StatePresent:
		return view, nil
	case domain.StateAbsent:
		return models.NotifView{}, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}

	v, err, _ := m.flight.Do(msgFlight(id), func() (interface{}, error) {
		return m.loadOne(context.WithoutCancel(ctx), id, nil)
	})
	if err != nil {
		return models.NotifView{}, err
	}
	return v.(models.NotifView), nil
}

// loadOne renders id from row (or the store when row is nil) and writes
// the result, or a sentinel, back to the cache.
func (m *Manager) loadOne(ctx context.Context, id int64, row *models.Notification) (models.NotifView, error) {
	if row == nil {
		n, err := m.store.Find(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			if err := m.cache.FlushSentinel(ctx, id); err != nil {
				m.syncFailed("flush_sentinel", 0, []int64{id}, err)
			}
			return models.NotifView{}, fmt.Errorf("notification %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return models.NotifView{}, err
		}
		row = n
	}

	view, err := m.parser.Parse(*row)
	if err != nil {
		return models.NotifView{}, err
	}
	if err := m.cache.FlushOne(ctx, view); err != nil {
		m.syncFailed("flush_one", view.ToID, []int64{id}, err)
	}
	return view, nil
}

// ReadOne marks id as read and returns the affected rows. A notification
// already read is left alone and 0 is returned.
func (m *Manager) ReadOne(ctx context.Context, id int64) (int64, error) {
	view, err := m.Find(ctx, id)
	if err != nil {
		return 0, err
	}
	return m.readView(ctx, view)
}

// readView marks an already resolved view as read.
func (m *Manager) readView(ctx context.Context, view models.NotifView) (int64, error) {
	id := view.ID
	if view.Read {
		return 0, nil
	}

	n, err := m.store.ReadOne(ctx, id)
	if err != nil {
		return 0, opFailed("read one", err)
	}
	if n == 0 {
		// The cached record outlived the row.
		m.dropStale(ctx, view)
		return 0, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err := m.cache.ReadOne(ctx, view); err != nil {
		m.syncFailed("read_one", view.ToID, []int64{id}, err)
	}
	return n, nil
}

func (m *Manager) ReadAll(ctx context.Context, toID int64) (int64, error) {
	n, err := m.store.ReadAll(ctx, toID)
	if err != nil {
		return 0, opFailed("read all", err)
	}
	failed, err := m.cache.ReadAll(ctx, toID)
	if err != nil {
		m.syncFailed("read_all", toID, nil, err)
	} else if len(failed) > 0 {
		m.syncFailed("read_all", toID, failed, errors.New("marking read failed"))
	}
	return n, nil
}

func (m *Manager) Delete(ctx context.Context, id int64) (bool, error) {
	view, err := m.Find(ctx, id)
	if err != nil {
		return false, err
	}
	return m.deleteView(ctx, view)
}

func (m *Manager) deleteView(ctx context.Context, view models.NotifView) (bool, error) {
	id := view.ID
	n, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, opFailed("delete", err)
	}
	if n == 0 {
		m.dropStale(ctx, view)
		return false, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err := m.cache.Delete(ctx, view); err != nil {
		m.syncFailed("delete", view.ToID, []int64{id}, err)
	}
	return true, nil
}

func (m *Manager) DeleteAll(ctx context.Context, toID int64) (bool, error) {
	if _, err := m.store.DeleteAll(ctx, toID); err != nil {
		return false, opFailed("delete all", err)
	}
	if err := m.cache.DeleteAll(ctx, toID); err != nil {
		m.syncFailed("delete_all", toID, nil, err)
	}
	return true, nil
}

func (m *Manager) dropStale(ctx context.Context, view models.NotifView) {
	if err := m.cache.Delete(ctx, view); err != nil {
		m.syncFailed("drop_stale", view.ToID, []int64{view.ID}, err)
	}
}

// GetAll returns one page of the recipient's notifications, newest first
// unless p.Order says otherwise.
func (m *Manager) GetAll(ctx context.Context, toID int64, p Page, filter Filter) ([]models.NotifView, error) {
	if p.Order != domain.OrderAsc {
		p.Order = domain.OrderDesc
	}
	if p.Page < 1 {
		p.Page = 1
	}

	ids, state, err := m.cache.GetAllSet(ctx, toID, p.Limit, p.Page, p.Order)
	if err != nil {
		m.cacheMiss(err, "get_all_set", toID)
		state = domain.StateUnknown
	}

	// rows is set only when the set was just rebuilt.
	var rows map[int64]models.Notification
	switch state {
	case domain.StateAbsent:
		return []models.NotifView{}, nil
	case domain.StateUnknown:
		v, err, _ := m.flight.Do(allSetFlight(toID), func() (interface{}, error) {
			return m.loadAllSet(context.WithoutCancel(ctx), toID)
		})
		if err != nil {
			return nil, err
		}
		rows = v.(map[int64]models.Notification)
		if len(rows) == 0 {
			return []models.NotifView{}, nil
		}
		ids, state, err = m.cache.GetAllSet(ctx, toID, p.Limit, p.Page, p.Order)
		if err != nil || state != domain.StatePresent {
			ids = pageIDs(rows, p)
		}
	}

	views := make([]models.NotifView, 0, len(ids))
	for _, id := range ids {
		view, ok, err := m.lookup(ctx, id, rows)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if filter != nil {
			view = filter(view)
		}
		views = append(views, view)
	}
	return views, nil
}

// lookup resolves a single listed id. Ids whose row is gone are skipped.
func (m *Manager) lookup(ctx context.Context, id int64, rows map[int64]models.Notification) (models.NotifView, bool, error) {
	view, state, err := m.cache.Find(ctx, id)
	if err != nil {
		m.cacheMiss(err, "find", id)
		state = domain.StateUnknown
	}
	switch state {
	case domain.StatePresent:
		return view, true, nil
	case domain.StateAbsent:
		return models.NotifView{}, false, nil
	}

	var row *models.Notification
	if r, found := rows[id]; found {
		row = &r
	}
	v, err, _ := m.flight.Do(msgFlight(id), func() (interface{}, error) {
		return m.loadOne(context.WithoutCancel(ctx), id, row)
	})
	if errors.Is(err, ErrNotFound) {
		return models.NotifView{}, false, nil
	}
	if err != nil {
		return models.NotifView{}, false, err
	}
	return v.(models.NotifView), true, nil
}

func (m *Manager) loadAllSet(ctx context.Context, toID int64) (map[int64]models.Notification, error) {
	notifs, err := m.store.GetAll(ctx, toID)
	if err != nil {
		return nil, err
	}
	rows := make(map[int64]models.Notification, len(notifs))
	ids := make([]int64, 0, len(notifs))
	for _, n := range notifs {
		rows[n.ID] = n
		ids = append(ids, n.ID)
	}
	if err := m.cache.FlushAllSet(ctx, toID, ids); err != nil {
		m.syncFailed("flush_all_set", toID, ids, err)
	}
	return rows, nil
}

// pageIDs pages rows directly, for when the cache can't be read back.
func pageIDs(rows map[int64]models.Notification, p Page) []int64 {
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if p.Order == domain.OrderAsc {
			return ids[i] < ids[j]
		}
		return ids[i] > ids[j]
	})
	if p.Limit <= 0 {
		return ids
	}
	if len(ids) == 0 || p.Page < 1 || p.Page-1 > (len(ids)-1)/p.Limit {
		return []int64{}
	}
	start := (p.Page - 1) * p.Limit
	end := len(ids)
	if p.Limit < end-start {
		end = start + p.Limit
	}
	return ids[start:end]
}

func (m *Manager) CountNotRead(ctx context.Context, toID int64) (int64, error) {
	count, state, err := m.cache.CountNotRead(ctx, toID)
	if err != nil {
		m.cacheMiss(err, "count_not_read", toID)
		state = domain.StateUnknown
	}
	switch state {
	case domain.StatePresent:
		return count, nil
	case domain.StateAbsent:
		return 0, nil
	}

	v, err, _ := m.flight.Do(noReadFlight(toID), func() (interface{}, error) {
		ctx := context.WithoutCancel(ctx)
		ids, err := m.store.GetNotRead(ctx, toID)
		if err != nil {
			return nil, err
		}
		if err := m.cache.FlushNoReadSet(ctx, toID, ids); err != nil {
			m.syncFailed("flush_noread_set", toID, ids, err)
		}
		return int64(len(ids)), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
