package broker

import (
	"fmt"
	"sync"
)

// MutexMap serializes resolutions of the same request id while letting
// different ids proceed in parallel. Locks are dropped once no caller is
// waiting on the key.
type MutexMap struct {
	edit         sync.Mutex
	queueLengths map[uint64]int
	mutexes      map[uint64]*sync.Mutex
	maxSize      int
}

func NewMutexMap(maxSize int) MutexMap {
	return MutexMap{
		queueLengths: make(map[uint64]int),
		mutexes:      make(map[uint64]*sync.Mutex),
		maxSize:      maxSize,
	}
}

func (m *MutexMap) Lock(key uint64) error {
	m.edit.Lock()

	if m.mutexes[key] == nil {
		if len(m.mutexes) >= m.maxSize {
			m.edit.Unlock()
			return fmt.Errorf("max size reached")
		}

		m.mutexes[key] = &sync.Mutex{}
		m.queueLengths[key] = 0
	}

	m.queueLengths[key]++
	m.edit.Unlock()

	m.mutexes[key].Lock()

	return nil
}

func (m *MutexMap) Unlock(key uint64) error {
	m.edit.Lock()

	if m.mutexes[key] == nil {
		m.edit.Unlock()
		return fmt.Errorf("key %d not found", key)
	}

	m.mutexes[key].Unlock()
	m.queueLengths[key]--

	if m.queueLengths[key] == 0 {
		delete(m.mutexes, key)
		delete(m.queueLengths, key)
	}

	m.edit.Unlock()

	return nil
}
