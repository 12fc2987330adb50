package vkapi

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// RawUpdate is one element of a long-poll "updates" array, or one Callback
// API request body. It is either a positional array or a {type, object} object.
type RawUpdate struct {
	gjson.Result
}

func (ru RawUpdate) IsPositional() bool {
	return ru.IsArray()
}

// Code returns the event code of a positional update.
func (ru RawUpdate) Code() int64 {
	return ru.Get("0").Int()
}

// Type returns the type of a structured update.
func (ru RawUpdate) Type() string {
	return ru.Get("type").String()
}

// UpdateQueue is a FIFO buffer between the long-poll loop and the dispatcher.
type UpdateQueue struct {
	log     zerolog.Logger
	maxSize int

	lock    sync.Mutex
	updates []RawUpdate
	dropped uint64
}

// NewUpdateQueue creates a queue. maxSize <= 0 means unbounded; otherwise
// the oldest updates are dropped when the queue is full.
func NewUpdateQueue(log zerolog.Logger, maxSize int) *UpdateQueue {
	return &UpdateQueue{log: log, maxSize: maxSize}
}

// PutAll appends every element in arrival order.
func (uq *UpdateQueue) PutAll(updates []gjson.Result) {
	if len(updates) == 0 {
		return
	}
	uq.lock.Lock()
	defer uq.lock.Unlock()
	for _, upd := range updates {
		uq.updates = append(uq.updates, RawUpdate{upd})
	}
	if uq.maxSize > 0 && len(uq.updates) > uq.maxSize {
		overflow := len(uq.updates) - uq.maxSize
		uq.dropped += uint64(overflow)
		uq.updates = append([]RawUpdate(nil), uq.updates[overflow:]...)
		uq.log.Warn().
			Int("dropped", overflow).
			Uint64("dropped_total", uq.dropped).
			Msg("Update queue is full, dropped oldest updates")
	}
}

// Shift pops the oldest update. ok is false if the queue is empty.
func (uq *UpdateQueue) Shift() (upd RawUpdate, ok bool) {
	uq.lock.Lock()
	defer uq.lock.Unlock()
	if len(uq.updates) == 0 {
		return
	}
	upd = uq.updates[0]
	uq.updates[0] = RawUpdate{}
	uq.updates = uq.updates[1:]
	if len(uq.updates) == 0 {
		uq.updates = nil
	}
	return upd, true
}

func (uq *UpdateQueue) Len() int {
	uq.lock.Lock()
	defer uq.lock.Unlock()
	return len(uq.updates)
}
