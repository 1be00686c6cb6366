package cache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/phagelab/go-playback/frame"
)

// storedFrame is the msgpack shape of a persisted projection.
type storedFrame struct {
	Index  int       `msgpack:"i"`
	Width  int       `msgpack:"w"`
	Height int       `msgpack:"h"`
	Pix    []float32 `msgpack:"p"`
}

// Store persists computed projections to sqlite so they survive
// restarts. It is an optional second tier: ProjectionCache never
// consults it on its own, composition is the caller's choice. Keys are
// the stable string form of a PrimaryKey.
type Store struct {
	db    *sql.DB
	ctx   context.Context
	close context.CancelFunc
	wg    sync.WaitGroup
	once  sync.Once
}

// NewStore opens (or creates) a projection store at dbPath. An empty
// path or ":memory:" uses an in-memory database. maxAge controls how
// long unused rows are retained; zero disables the cleanup loop.
func NewStore(ctx context.Context, dbPath string, maxAge time.Duration) (*Store, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening projection store")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling WAL")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS projections (
		key TEXT PRIMARY KEY,
		image_id INTEGER NOT NULL,
		value BLOB NOT NULL,
		touched_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating projections table")
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_projections_image ON projections(image_id)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating image index")
	}

	childCtx, cancel := context.WithCancel(ctx)
	s := &Store{db: db, ctx: childCtx, close: cancel}
	if maxAge > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(maxAge)
	}
	return s, nil
}

// Get loads a persisted projection. The bool result is false on a miss.
func (s *Store) Get(key PrimaryKey) (frame.Frame, bool, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT value FROM projections WHERE key = ?`, key.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return frame.Frame{}, false, nil
	}
	if err != nil {
		return frame.Frame{}, false, errors.Wrap(err, "reading projection")
	}
	var stored storedFrame
	if err := msgpack.Unmarshal(blob, &stored); err != nil {
		return frame.Frame{}, false, errors.Wrap(err, "decoding projection")
	}
	_, _ = s.db.Exec(`UPDATE projections SET touched_at = ? WHERE key = ?`,
		time.Now().UnixNano(), key.String())
	return frame.Frame{
		Index:  stored.Index,
		Width:  stored.Width,
		Height: stored.Height,
		Pix:    stored.Pix,
	}, true, nil
}

// Put persists a projection, replacing any prior value for the key.
func (s *Store) Put(key PrimaryKey, f frame.Frame) error {
	blob, err := msgpack.Marshal(storedFrame{
		Index:  f.Index,
		Width:  f.Width,
		Height: f.Height,
		Pix:    f.Pix,
	})
	if err != nil {
		return errors.Wrap(err, "encoding projection")
	}
	_, err = s.db.Exec(
		`INSERT INTO projections (key, image_id, value, touched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, touched_at = excluded.touched_at`,
		key.String(), key.ImageID, blob, time.Now().UnixNano(),
	)
	return errors.Wrap(err, "writing projection")
}

// Delete removes a single persisted projection.
func (s *Store) Delete(key PrimaryKey) error {
	_, err := s.db.Exec(`DELETE FROM projections WHERE key = ?`, key.String())
	return errors.Wrap(err, "deleting projection")
}

// DeleteImage removes every persisted projection for an image, the
// durable counterpart of ProjectionCache.InvalidateImage.
func (s *Store) DeleteImage(imageID int64) error {
	_, err := s.db.Exec(`DELETE FROM projections WHERE image_id = ?`, imageID)
	return errors.Wrap(err, "deleting image projections")
}

// Close stops the cleanup loop and closes the database. Idempotent.
func (s *Store) Close() error {
	var dbErr error
	s.once.Do(func() {
		s.close()
		s.wg.Wait()
		dbErr = s.db.Close()
	})
	return dbErr
}

func (s *Store) cleanupLoop(maxAge time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-maxAge).UnixNano()
			_, _ = s.db.Exec(`DELETE FROM projections WHERE touched_at < ?`, cutoff)
		}
	}
}
