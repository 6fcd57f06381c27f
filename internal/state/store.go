package state

import (
	"fmt"
	"sync"

	"agentscore/internal/clock"
	workererrors "agentscore/internal/errors"
	"agentscore/internal/filestore"
	"agentscore/internal/jsonx"
	"agentscore/internal/logging"
)

// Store loads and saves snapshots.
type Store interface {
	// Load returns the persisted snapshot, or defaults when there is none.
	// A corrupt snapshot also yields defaults together with a
	// KindLocalCorruption error the caller may log and ignore.
	Load(identity string) (Snapshot, error)
	// Save overwrites the persisted snapshot.
	Save(snapshot Snapshot) error
}

// FileStore keeps the snapshot in one JSON file.
type FileStore struct {
	path   string
	clock  clock.Clock
	logger logging.Logger

	mu sync.Mutex
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string, clk clock.Clock, logger logging.Logger) *FileStore {
	return &FileStore{
		path:   path,
		clock:  clock.OrReal(clk),
		logger: logging.OrNop(logger),
	}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(identity string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	data, err := filestore.ReadFileOrEmpty(s.path)
	if err != nil {
		return Defaults(identity, now), workererrors.New(workererrors.KindLocalCorruption, "state.load", err)
	}
	if len(data) == 0 {
		return Defaults(identity, now), nil
	}

	var snap Snapshot
	if err := jsonx.Unmarshal(data, &snap); err != nil {
		quarantined, qerr := filestore.Quarantine(s.path, now)
		if qerr != nil {
			s.logger.Warn("could not quarantine %s: %v", s.path, qerr)
		} else {
			s.logger.Warn("corrupt snapshot moved to %s", quarantined)
		}
		return Defaults(identity, now), workererrors.New(workererrors.KindLocalCorruption, "state.load",
			fmt.Errorf("decode %s: %w", s.path, err))
	}

	if identity != "" && snap.Identity != "" && snap.Identity != identity {
		s.logger.Warn("snapshot belongs to %s, starting fresh for %s", snap.Identity, identity)
		return Defaults(identity, now), nil
	}
	return snap.normalize(identity, now), nil
}

// Save implements Store.
func (s *FileStore) Save(snapshot Snapshot) error {
	snapshot.Version = SchemaVersion
	data, err := jsonx.MarshalIndentLine(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := filestore.AtomicWrite(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot %s: %w", s.path, err)
	}
	return nil
}

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
	clock clock.Clock
}

// NewMemory returns an empty in-process store.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{clock: clock.OrReal(clk)}
}

// Load implements Store.
func (m *Memory) Load(identity string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return Defaults(identity, m.clock.Now()), nil
	}
	return *m.snap, nil
}

// Save implements Store.
func (m *Memory) Save(snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot.Version = SchemaVersion
	m.snap = &snapshot
	m.saves++
	return nil
}

// Saves returns how many times Save ran.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
