package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/proxy-vitals/internal/storage"
	"github.com/proxy-vitals/internal/types"
	log "github.com/sirupsen/logrus"
)

// Manager holds the live view of the current check run: running summary
// plus the working set found so far. Readers (the status API) always see a
// consistent snapshot via atomic swap; persistence runs off to the side.
type Manager struct {
	current   atomic.Value // stores *types.Snapshot
	storage   storage.Storage
	persistMu sync.Mutex
	rrIndex   atomic.Uint64 // Round-robin index for proxy handout

	persistInterval time.Duration
	stopPersist     chan struct{}
	stopOnce        sync.Once
}

func NewManager(store storage.Storage, persistIntervalSeconds int) *Manager {
	m := &Manager{
		storage:         store,
		persistInterval: time.Duration(persistIntervalSeconds) * time.Second,
		stopPersist:     make(chan struct{}),
	}

	// Initialize with empty snapshot
	m.current.Store(&types.Snapshot{
		Working: []types.Success{},
		Summary: types.Summary{},
		Updated: time.Now(),
	})

	if store != nil && persistIntervalSeconds > 0 {
		go m.periodicPersist()
	}

	return m
}

// Update atomically swaps the current snapshot
func (m *Manager) Update(working []types.Success, summary types.Summary) {
	snap := &types.Snapshot{
		Working: working,
		Summary: summary,
		Updated: time.Now(),
	}

	m.current.Store(snap)
}

// Get returns the current snapshot (atomic read)
func (m *Manager) Get() *types.Snapshot {
	return m.current.Load().(*types.Snapshot)
}

// GetProxy returns a single working proxy using round-robin
func (m *Manager) GetProxy() (types.Success, bool) {
	snap := m.Get()
	if len(snap.Working) == 0 {
		return types.Success{}, false
	}

	idx := m.rrIndex.Add(1) % uint64(len(snap.Working))
	return snap.Working[idx], true
}

// GetWorking returns all working proxies found so far
func (m *Manager) GetWorking() []types.Success {
	snap := m.Get()
	// Return copy to prevent external modifications
	working := make([]types.Success, len(snap.Working))
	copy(working, snap.Working)
	return working
}

// GetSummary returns the current run summary
func (m *Manager) GetSummary() types.Summary {
	return m.Get().Summary
}

// persist saves the snapshot to storage
func (m *Manager) persist(snap *types.Snapshot) {
	if m.storage == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.storage.Save(snap); err != nil {
		log.Errorf("Failed to persist run snapshot: %v", err)
	} else {
		log.Debugf("Run snapshot persisted: %d working proxies", len(snap.Working))
	}
}

// periodicPersist saves the snapshot at regular intervals
func (m *Manager) periodicPersist() {
	ticker := time.NewTicker(m.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.persist(m.Get())
		case <-m.stopPersist:
			return
		}
	}
}

// Close stops background persistence and writes a final snapshot
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopPersist)
	})

	m.persist(m.Get())
}
