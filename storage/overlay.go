package storage

import (
	"errors"
	"sort"
	"sync"
)

// Overlay buffers writes over a parent database. Reads fall through to the
// parent for keys the overlay has not touched. Nothing reaches the parent
// until Commit; Discard drops the buffer.
type Overlay struct {
	mu      sync.RWMutex
	parent  Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay returns an empty write buffer over parent.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{
		parent:  parent,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	k := string(key)
	if value, ok := o.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := o.deletes[k]; ok {
		return nil, ErrNotFound
	}
	return o.parent.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	_, err := o.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// Pending reports the number of buffered writes and deletes.
func (o *Overlay) Pending() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.writes) + len(o.deletes)
}

// Commit flushes the buffer to the parent and resets it. Parents that
// implement Batcher receive every change in one atomic batch; others get
// individual writes in key order. On error the buffer is kept.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	writes := o.pendingWrites()
	if batcher, ok := o.parent.(Batcher); ok {
		if err := batcher.WriteBatch(writes); err != nil {
			return err
		}
	} else {
		for _, w := range writes {
			var err error
			if w.Delete {
				err = o.parent.Delete(w.Key)
			} else {
				err = o.parent.Put(w.Key, w.Value)
			}
			if err != nil {
				return err
			}
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// WriteBatch folds writes into the buffer, so overlays can stack.
func (o *Overlay) WriteBatch(writes []Write) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, w := range writes {
		k := string(w.Key)
		if w.Delete {
			delete(o.writes, k)
			o.deletes[k] = struct{}{}
			continue
		}
		delete(o.deletes, k)
		o.writes[k] = append([]byte(nil), w.Value...)
	}
	return nil
}

// pendingWrites lists buffered puts then deletes, each in key order.
func (o *Overlay) pendingWrites() []Write {
	puts := make([]string, 0, len(o.writes))
	for k := range o.writes {
		puts = append(puts, k)
	}
	sort.Strings(puts)
	dels := make([]string, 0, len(o.deletes))
	for k := range o.deletes {
		dels = append(dels, k)
	}
	sort.Strings(dels)

	out := make([]Write, 0, len(puts)+len(dels))
	for _, k := range puts {
		out = append(out, Write{Key: []byte(k), Value: o.writes[k]})
	}
	for _, k := range dels {
		out = append(out, Write{Key: []byte(k), Delete: true})
	}
	return out
}

// Discard drops every buffered change.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// Close is a no-op; the parent outlives its overlays.
func (o *Overlay) Close() {}
