// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"sync"
	"time"

	"github.com/fileflow/fileflow/api"
	"github.com/fileflow/fileflow/cmn/cos"
	"github.com/fileflow/fileflow/cmn/debug"
	"github.com/fileflow/fileflow/cmn/mono"
	"github.com/fileflow/fileflow/stats"
)

type (
	senderRec struct {
		q *msgQ
	}
	recvRec struct {
		q        *msgQ
		senderID cos.ID // owning sender; immutable after registration
	}
	streamRec struct {
		infoCh chan api.FileInfo // one-shot; nil once the sending end is taken
		pipe   *dataPipe
		born   int64 // mono
		taken  bool  // data-pipe sending end taken
	}

	senderReg struct {
		m  map[cos.ID]*senderRec
		mu sync.RWMutex
	}
	recvReg struct {
		m  map[cos.ID]*recvRec
		mu sync.RWMutex
	}
	streamReg struct {
		m  map[cos.ID]*streamRec
		mu sync.Mutex
	}
)

func newSenderReg() *senderReg { return &senderReg{m: make(map[cos.ID]*senderRec)} }
func newRecvReg() *recvReg     { return &recvReg{m: make(map[cos.ID]*recvRec)} }
func newStreamReg() *streamReg { return &streamReg{m: make(map[cos.ID]*streamRec)} }

// mint a fresh id not present in m (collision odds are negligible at 128 bits,
// still: the check is free under the lock we already hold)
func mintID[T any](m map[cos.ID]T) cos.ID {
	for {
		id := cos.GenID()
		if _, ok := m[id]; !ok {
			return id
		}
	}
}

//////////////
// senderReg //
//////////////

// add registers the queue under `want` when provided, a minted id otherwise.
// The duplicate check and the insertion are one critical section.
func (r *senderReg) add(q *msgQ, want *cos.ID) (cos.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var id cos.ID
	if want != nil {
		if _, ok := r.m[*want]; ok {
			return cos.IDNone, cos.NewErrAlreadyRegistered("sender", *want)
		}
		id = *want
	} else {
		id = mintID(r.m)
	}
	debug.Assert(!id.IsZero())
	r.m[id] = &senderRec{q: q}
	stats.Senders.Inc()
	return id, nil
}

func (r *senderReg) remove(id cos.ID) bool {
	r.mu.Lock()
	_, ok := r.m[id]
	delete(r.m, id)
	r.mu.Unlock()
	if ok {
		stats.Senders.Dec()
	}
	return ok
}

func (r *senderReg) get(id cos.ID) *msgQ {
	r.mu.RLock()
	rec := r.m[id]
	r.mu.RUnlock()
	if rec == nil {
		return nil
	}
	return rec.q
}

// send is fire-and-forget: unknown id and closed queue are both no-ops.
func (r *senderReg) send(id cos.ID, frame []byte) {
	if q := r.get(id); q != nil {
		q.post(frame)
	}
}

func (r *senderReg) count() int {
	r.mu.RLock()
	n := len(r.m)
	r.mu.RUnlock()
	return n
}

/////////////
// recvReg //
/////////////

func (r *recvReg) add(senderID cos.ID, q *msgQ, want *cos.ID) (cos.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var id cos.ID
	if want != nil {
		if _, ok := r.m[*want]; ok {
			return cos.IDNone, cos.NewErrAlreadyRegistered("receiver", *want)
		}
		id = *want
	} else {
		id = mintID(r.m)
	}
	debug.Assert(!id.IsZero())
	r.m[id] = &recvRec{q: q, senderID: senderID}
	stats.Receivers.Inc()
	return id, nil
}

func (r *recvReg) remove(id cos.ID) bool {
	r.mu.Lock()
	_, ok := r.m[id]
	delete(r.m, id)
	r.mu.Unlock()
	if ok {
		stats.Receivers.Dec()
	}
	return ok
}

func (r *recvReg) sendOne(id cos.ID, frame []byte) bool {
	r.mu.RLock()
	rec := r.m[id]
	r.mu.RUnlock()
	if rec == nil {
		return false
	}
	rec.q.post(frame)
	return true
}

// sendWhere posts the frame to every receiver whose record matches. The set
// is snapshotted under the read lock; posting happens outside of it.
func (r *recvReg) sendWhere(frame []byte, match func(senderID cos.ID) bool) {
	var targets []*msgQ
	r.mu.RLock()
	for _, rec := range r.m {
		if match(rec.senderID) {
			targets = append(targets, rec.q)
		}
	}
	r.mu.RUnlock()
	for _, q := range targets {
		q.post(frame)
	}
}

func (r *recvReg) count() int {
	r.mu.RLock()
	n := len(r.m)
	r.mu.RUnlock()
	return n
}

///////////////
// streamReg //
///////////////

// add creates the per-download rendezvous record and returns its id together
// with the receiving ends: the one-shot info slot and the byte pipe.
func (r *streamReg) add() (id cos.ID, infoRx <-chan api.FileInfo, pipe *dataPipe) {
	rec := &streamRec{
		infoCh: make(chan api.FileInfo, 1),
		pipe:   newDataPipe(),
		born:   mono.NanoTime(),
	}
	r.mu.Lock()
	id = mintID(r.m)
	r.m[id] = rec
	r.mu.Unlock()
	stats.Streams.Inc()
	return id, rec.infoCh, rec.pipe
}

// takeInfo destructively removes the info-slot sending end; at most one call
// returns non-nil for a given id.
func (r *streamReg) takeInfo(id cos.ID) chan<- api.FileInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.m[id]
	if rec == nil || rec.infoCh == nil {
		return nil
	}
	ch := rec.infoCh
	rec.infoCh = nil
	r.gcLocked(id, rec)
	return ch
}

// takeData destructively removes the data-pipe sending end; same single-shot
// contract as takeInfo.
func (r *streamReg) takeData(id cos.ID) *pipeTx {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.m[id]
	if rec == nil || rec.taken {
		return nil
	}
	rec.taken = true
	tx := &pipeTx{p: rec.pipe}
	r.gcLocked(id, rec)
	return tx
}

// once both ends are gone the record is garbage
func (r *streamReg) gcLocked(id cos.ID, rec *streamRec) {
	if rec.infoCh == nil && rec.taken {
		delete(r.m, id)
		stats.Streams.Dec()
	}
}

// drop cancels a pending download: the record is removed, a not-yet-taken
// info slot is closed (waiters see "no value"), and the pipe is aborted so
// an in-flight upload fails fast.
func (r *streamReg) drop(id cos.ID) {
	var infoCh chan api.FileInfo
	r.mu.Lock()
	rec := r.m[id]
	if rec != nil {
		delete(r.m, id)
		infoCh, rec.infoCh = rec.infoCh, nil
	}
	r.mu.Unlock()
	if rec == nil {
		return
	}
	stats.Streams.Dec()
	if infoCh != nil {
		close(infoCh)
	}
	rec.pipe.abort()
}

func (r *streamReg) count() int {
	r.mu.Lock()
	n := len(r.m)
	r.mu.Unlock()
	return n
}

// housekeep evicts records that sat half-consumed past the TTL
// (download task gone without cleanup, upload that never finished pairing).
func (r *streamReg) housekeep(ttl time.Duration) (evicted int) {
	var victims []cos.ID
	now := mono.NanoTime()
	r.mu.Lock()
	for id, rec := range r.m {
		if time.Duration(now-rec.born) > ttl {
			victims = append(victims, id)
		}
	}
	r.mu.Unlock()
	for _, id := range victims {
		r.drop(id)
	}
	if evicted = len(victims); evicted > 0 {
		stats.StreamEvictedCount.Add(float64(evicted))
	}
	return
}
