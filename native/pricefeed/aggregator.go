// Package pricefeed provides in-process price aggregators reporting answers
// on an 8-decimal scale.
package pricefeed

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Decimals is the scale of every answer reported by an Aggregator.
const Decimals = 8

var errNoAnswer = errors.New("pricefeed: no answer reported")

// Aggregator holds the latest reported answer of one feed.
type Aggregator struct {
	mu        sync.RWMutex
	answer    *big.Int
	updatedAt time.Time
	nowFn     func() time.Time
}

// NewAggregator returns a feed reporting initial.
func NewAggregator(initial *big.Int) *Aggregator {
	a := &Aggregator{nowFn: time.Now}
	if initial != nil {
		a.answer = new(big.Int).Set(initial)
		a.updatedAt = a.nowFn()
	}
	return a
}

// LatestAnswer returns the most recent answer.
func (a *Aggregator) LatestAnswer() (*big.Int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.answer == nil {
		return nil, errNoAnswer
	}
	return new(big.Int).Set(a.answer), nil
}

// UpdatedAt reports when the answer last changed.
func (a *Aggregator) UpdatedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updatedAt
}

// UpdateAnswer replaces the reported answer.
func (a *Aggregator) UpdateAnswer(answer *big.Int) error {
	if answer == nil || answer.Sign() <= 0 {
		return fmt.Errorf("pricefeed: answer must be positive")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answer = new(big.Int).Set(answer)
	a.updatedAt = a.nowFn()
	return nil
}

// Directory maps feed addresses to aggregators so a configured feed address
// can be resolved at call time.
type Directory struct {
	mu    sync.RWMutex
	feeds map[ethcommon.Address]*Aggregator
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{feeds: make(map[ethcommon.Address]*Aggregator)}
}

// Register binds addr to feed, replacing any previous binding.
func (d *Directory) Register(addr ethcommon.Address, feed *Aggregator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feeds[addr] = feed
}

// Lookup returns the aggregator registered at addr.
func (d *Directory) Lookup(addr ethcommon.Address) (*Aggregator, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	feed, ok := d.feeds[addr]
	return feed, ok
}
