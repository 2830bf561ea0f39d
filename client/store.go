package client

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"school_messenger/internal/domain"
	apperrors "school_messenger/pkg/errors"
	"school_messenger/pkg/logger"
)

// Store is the on-device message cache: a strict, possibly stale subset of
// the server's history kept to cut latency and allow offline viewing. It is
// never the source of truth; every failure degrades to "cache miss".
//
// Key layout (all segments ':'-separated):
//
//	g:<token>:m:<len-prefixed sort key>  -> message JSON
//	i:<message id>                       -> row key (insert-or-replace index)
//	grp:<token>                          -> group stub (insert-or-ignore)
//
// The sort-key segment is prefixed with its zero-padded digit count so that
// lexicographic key order equals numeric order for decimal strings of any
// length.
type Store struct {
	db  *pebble.DB
	log logger.Logger
}

func OpenStore(path string, log logger.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		log.Error("Failed to open local store", "error", err, "path", path)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func messageRowKey(groupToken, sortKey string) []byte {
	return []byte(fmt.Sprintf("g:%s:m:%04d:%s", groupToken, len(sortKey), sortKey))
}

func messagePrefix(groupToken string) []byte {
	return []byte("g:" + groupToken + ":m:")
}

func idIndexKey(id string) []byte {
	return []byte("i:" + id)
}

func groupStubKey(groupToken string) []byte {
	return []byte("grp:" + groupToken)
}

func validSortKey(s string) bool {
	if s == "" || len(s) > 9999 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Upsert is an idempotent insert-or-replace keyed by message id. Groups
// referenced by the batch are stubbed in if unknown; existing group entries
// are never touched by this path. Entries with unusable sort keys are
// skipped rather than allowed to poison the cache.
func (s *Store) Upsert(messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if s.db == nil {
		return apperrors.ErrStoreUnavailable
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, m := range messages {
		if !validSortKey(m.SortKey) || m.GroupKey == "" {
			s.log.Warn("Skipping uncacheable message", "id", m.ID, "sort_key", m.SortKey)
			continue
		}

		rowKey := messageRowKey(m.GroupKey, m.SortKey)
		idKey := idIndexKey(m.ID.String())

		// Same id stored under a different sort key means the server moved
		// or reassigned the message; drop the stale row.
		if oldRow, closer, err := s.db.Get(idKey); err == nil {
			if string(oldRow) != string(rowKey) {
				old := append([]byte(nil), oldRow...)
				if err := batch.Delete(old, nil); err != nil {
					closer.Close()
					return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
				}
			}
			closer.Close()
		} else if err != pebble.ErrNotFound {
			return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
		}

		value, err := json.Marshal(m)
		if err != nil {
			s.log.Warn("Skipping unmarshalable message", "id", m.ID)
			continue
		}
		if err := batch.Set(rowKey, value, nil); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
		}
		if err := batch.Set(idKey, rowKey, nil); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
		}

		// insert-or-ignore group stub
		stub := groupStubKey(m.GroupKey)
		if _, closer, err := s.db.Get(stub); err == pebble.ErrNotFound {
			if err := batch.Set(stub, []byte("{}"), nil); err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
			}
		} else if err == nil {
			closer.Close()
		} else {
			return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		s.log.Error("Failed to commit upsert", "error", err)
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

// Fetch returns up to limit cached messages for the group, newest first.
// A non-empty cursor bounds the window from above, inclusive, which is how
// the engine pages back into older cached history. An unknown group yields
// an empty result, never an error. Rows that fail to decode are quarantined
// (skipped) instead of failing the read.
func (s *Store) Fetch(groupToken string, limit int, cursor string) ([]domain.Message, error) {
	if s.db == nil {
		return nil, apperrors.ErrStoreUnavailable
	}
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	prefix := messagePrefix(groupToken)
	upper := prefixUpperBound(prefix)
	if cursor != "" {
		if !validSortKey(cursor) {
			return []domain.Message{}, nil
		}
		// row key + 0x00 sorts immediately after the cursor row, making the
		// bound inclusive under pebble's exclusive UpperBound.
		upper = append(messageRowKey(groupToken, cursor), 0x00)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	defer iter.Close()

	var messages []domain.Message
	for ok := iter.Last(); ok && len(messages) < limit; ok = iter.Prev() {
		var m domain.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			s.log.Warn("Quarantining malformed cache row", "key", string(iter.Key()))
			continue
		}
		messages = append(messages, m)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	return messages, nil
}

// HasGroup reports whether the group has ever been stubbed into the cache.
func (s *Store) HasGroup(groupToken string) (bool, error) {
	if s.db == nil {
		return false, apperrors.ErrStoreUnavailable
	}
	_, closer, err := s.db.Get(groupStubKey(groupToken))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	closer.Close()
	return true, nil
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
