package snapshot

import (
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"offersync/internal/models"
)

// Buckets, one per query shape so the two key spaces never collide.
const (
	BucketBuyer    = "buyer"
	BucketSupplier = "supplier"
)

// Entry is one persisted cache entry: the fetch timestamp plus the
// normalized list.
type Entry struct {
	At     time.Time      `json:"at"`
	Offers []models.Offer `json:"offers"`
}

// Store persists offer-list cache entries in a single-file BoltDB database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the snapshot database and ensures both buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketBuyer, BucketSupplier} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the cache entry for one actor id, replacing any previous one.
func (s *Store) Save(bucket, actorID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(actorID), data)
	})
}

// Load returns the stored entry for an actor id, if any.
func (s *Store) Load(bucket, actorID string) (Entry, bool, error) {
	var e Entry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get([]byte(actorID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})
	return e, found, err
}

// Each visits every stored entry in a bucket.
func (s *Store) Each(bucket string, fn func(actorID string, e Entry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			return fn(string(k), e)
		})
	})
}
