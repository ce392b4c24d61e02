package marketplace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

// Store is a LevelDB-backed persisted cache of the listing view, so a
// restarted agent's marketplace view survives process restart. Additive to
// the in-memory View; not part of the spec's required on-disk layout.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens (creating if absent) the listing cache at dir.
func OpenStore(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open listing store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists a listing keyed by its d-tag.
func (s *Store) Put(l *Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	return s.db.Put([]byte(l.DTag), data, nil)
}

// Delete removes a cached listing.
func (s *Store) Delete(dTag string) error {
	return s.db.Delete([]byte(dTag), nil)
}

// LoadAll returns every non-stale cached listing, for seeding a View after
// restart.
func (s *Store) LoadAll() ([]*Listing, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	cutoff := time.Now().Add(-stalenessWindow)
	var out []*Listing
	for iter.Next() {
		var l Listing
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			continue // skip corrupt entries rather than fail the whole load
		}
		if l.ObservedAt.Before(cutoff) {
			continue
		}
		out = append(out, &l)
	}
	return out, iter.Error()
}
