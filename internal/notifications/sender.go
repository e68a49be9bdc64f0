package notifications

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/ranfdev/notifyd/internal/domain"
	"gitlab.com/ranfdev/notifyd/internal/models"
)

// Sender persists new notifications and then patches the recipients'
// cached sets. Failures never escape: callers get a false.
type Sender struct {
	store domain.Store
	cache domain.Cache
	log   zerolog.Logger
}

func NewSender(store domain.Store, cache domain.Cache, log zerolog.Logger) *Sender {
	return &Sender{
		store: store,
		cache: cache,
		log:   log,
	}
}

func (s *Sender) SendOne(ctx context.Context, n models.Notification) (int64, bool) {
	id, err := s.store.StoreSingle(ctx, n)
	if err != nil {
		s.log.Error().Err(err).Int64("to_id", n.ToID).Msg("storing notification failed")
		return 0, false
	}
	if id <= 0 {
		s.log.Error().Int64("id", id).Int64("to_id", n.ToID).Msg("store returned no id")
		return 0, false
	}
	s.propagate(ctx, n.ToID, id)
	return id, true
}

// SendMultiple stores ns in one transaction. The returned ids match ns
// positionally.
func (s *Sender) SendMultiple(ctx context.Context, ns []models.Notification) ([]int64, bool) {
	if len(ns) == 0 {
		return []int64{}, true
	}
	ids, err := s.store.StoreMultiple(ctx, ns)
	if err != nil {
		s.log.Error().Err(err).Int("count", len(ns)).Msg("storing notifications failed")
		return nil, false
	}
	if len(ids) != len(ns) {
		s.log.Error().Int("count", len(ns)).Int("ids", len(ids)).Msg("store returned a partial batch")
		return ids, false
	}
	for i, id := range ids {
		s.propagate(ctx, ns[i].ToID, id)
	}
	return ids, true
}

// propagate adds a freshly stored id to the warm sets of its recipient.
// Cold sets are left alone: the next read rebuilds them from the store.
func (s *Sender) propagate(ctx context.Context, toID, id int64) {
	log := s.log.With().Int64("to_id", toID).Int64("id", id).Logger()

	// A miss on this id may have been cached before the row existed.
	if err := s.cache.Evict(ctx, id); err != nil {
		log.Error().Err(&CacheSyncError{Op: "evict", IDs: []int64{id}, Err: err}).Msg("cache out of sync with store")
	}
	if ok, err := s.cache.AddNoReadSet(ctx, toID, id); err != nil {
		log.Error().Err(&CacheSyncError{Op: "add_noread_set", IDs: []int64{id}, Err: err}).Msg("cache out of sync with store")
	} else if !ok {
		log.Debug().Msg("unread set cold, skipped")
	}
	if ok, err := s.cache.AddAllSet(ctx, toID, id); err != nil {
		log.Error().Err(&CacheSyncError{Op: "add_all_set", IDs: []int64{id}, Err: err}).Msg("cache out of sync with store")
	} else if !ok {
		log.Debug().Msg("all set cold, skipped")
	}
}
