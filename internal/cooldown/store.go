package cooldown

import (
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("cooldowns")

// Store is the process-wide key-value store of spec §4.3/§6, one entry
// per client id, value = the codec string from codec.go. It is backed by
// a single-bucket bbolt database, the embedded KV store the pack's
// hashicorp/consul carries for its own stable store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the decoded, still-live timers for clientID.
func (s *Store) Load(clientID string, now time.Time) Timers {
	nowMS := now.UnixMilli()
	var raw string
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(clientID))
		raw = string(v)
		return nil
	})
	return Decode(raw, nowMS)
}

// Save persists t for clientID, re-encoding with the expiry filter
// applied. An empty encoding deletes the client's entry entirely so the
// store does not accumulate tombstones.
func (s *Store) Save(clientID string, t Timers, now time.Time) error {
	encoded := Encode(t, now.UnixMilli())
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if encoded == "" {
			return b.Delete([]byte(clientID))
		}
		return b.Put([]byte(clientID), []byte(encoded))
	})
}

// Sweep re-encodes every client's entry, dropping expired cooldowns, and
// reports how many entries remained. Run once at startup and once per
// hour per spec §4.3.
func (s *Store) Sweep(now time.Time) (remaining int, err error) {
	nowMS := now.UnixMilli()
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		type update struct {
			key     []byte
			encoded string
		}
		var updates []update
		cur := b.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			decoded := Decode(string(v), nowMS)
			updates = append(updates, update{key: append([]byte(nil), k...), encoded: Encode(decoded, nowMS)})
		}
		for _, u := range updates {
			if u.encoded == "" {
				if err := b.Delete(u.key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(u.key, []byte(u.encoded)); err != nil {
				return err
			}
			remaining++
		}
		return nil
	})
	return remaining, err
}

// RunSweeper runs Sweep once immediately, then on every tick until stop
// is closed, logging failures instead of surfacing them (per spec §7,
// no error path in this loop may be fatal).
func (s *Store) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	sweepOnce := func() {
		n, err := s.Sweep(time.Now())
		log := logrus.WithField("component", "cooldown-sweep")
		if err != nil {
			log.WithError(err).Warn("Cooldown sweep failed.")
			return
		}
		log.WithField("remaining", n).Debug("Cooldown sweep complete.")
	}

	sweepOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweepOnce()
		case <-stop:
			return
		}
	}
}
