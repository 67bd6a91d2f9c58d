// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"errors"
	"sync"
)

var errDownloadGone = errors.New("download side is gone")

type (
	// dataPipe carries file bytes from the upload handler to the download
	// response. The chunk channel is a rendezvous: upload-side sends block
	// until the download consumer is ready, which propagates backpressure
	// end-to-end. `done` is closed by the reading side on cancellation.
	dataPipe struct {
		ch       chan []byte
		done     chan struct{}
		abortOnc sync.Once
	}

	// pipeTx is the sending half, moved out of the stream record exactly once.
	pipeTx struct {
		p *dataPipe
	}
)

func newDataPipe() *dataPipe {
	return &dataPipe{
		ch:   make(chan []byte),
		done: make(chan struct{}),
	}
}

// abort tells the sending side to stop; safe to call more than once
// and from either side.
func (p *dataPipe) abort() {
	p.abortOnc.Do(func() { close(p.done) })
}

// send hands one chunk to the download side. Ownership of the slice
// moves with it.
func (tx pipeTx) send(chunk []byte) error {
	select {
	case tx.p.ch <- chunk:
		return nil
	case <-tx.p.done:
		return errDownloadGone
	}
}

// close signals EOF to the download side.
func (tx pipeTx) close() {
	close(tx.p.ch)
}
