package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResourceManager hands out a fixed number of scan slots.
type ResourceManager interface {
	// Acquire blocks until a slot is free for runID or ctx is done.
	Acquire(ctx context.Context, runID string) error

	// Release frees the slot held by runID.
	Release(runID string)

	// GetActiveScans returns the number of held slots.
	GetActiveScans() int

	// GetAvailableSlots returns the number of free slots.
	GetAvailableSlots() int

	// Close rejects further acquisitions.
	Close() error

	// GetStats returns a summary for logging.
	GetStats() map[string]interface{}
}

// FixedResourceManager implements ResourceManager with a semaphore.
type FixedResourceManager struct {
	capacity    int
	semaphore   chan struct{}
	activeScans map[string]time.Time
	mutex       sync.RWMutex
	closed      bool
}

// NewFixedResourceManager creates a resource manager with the given capacity.
func NewFixedResourceManager(capacity int) *FixedResourceManager {
	if capacity <= 0 {
		capacity = 1
	}

	return &FixedResourceManager{
		capacity:    capacity,
		semaphore:   make(chan struct{}, capacity),
		activeScans: make(map[string]time.Time),
	}
}

// Acquire implements ResourceManager.
func (rm *FixedResourceManager) Acquire(ctx context.Context, runID string) error {
	rm.mutex.RLock()
	closed := rm.closed
	rm.mutex.RUnlock()
	if closed {
		return fmt.Errorf("resource manager is closed")
	}

	select {
	case rm.semaphore <- struct{}{}:
		rm.mutex.Lock()
		rm.activeScans[runID] = time.Now()
		rm.mutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release implements ResourceManager. Unknown run IDs are ignored.
func (rm *FixedResourceManager) Release(runID string) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if _, exists := rm.activeScans[runID]; !exists {
		return
	}
	delete(rm.activeScans, runID)

	select {
	case <-rm.semaphore:
	default:
	}
}

// GetActiveScans implements ResourceManager.
func (rm *FixedResourceManager) GetActiveScans() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	return len(rm.activeScans)
}

// GetAvailableSlots implements ResourceManager.
func (rm *FixedResourceManager) GetAvailableSlots() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	return rm.capacity - len(rm.activeScans)
}

// Close implements ResourceManager. Slots already held stay valid until
// released.
func (rm *FixedResourceManager) Close() error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	rm.closed = true
	return nil
}

// GetStats implements ResourceManager.
func (rm *FixedResourceManager) GetStats() map[string]interface{} {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	var oldest time.Duration
	for _, started := range rm.activeScans {
		if age := time.Since(started); age > oldest {
			oldest = age
		}
	}

	return map[string]interface{}{
		"capacity":        rm.capacity,
		"active_scans":    len(rm.activeScans),
		"available_slots": rm.capacity - len(rm.activeScans),
		"longest_running": oldest,
		"closed":          rm.closed,
	}
}
