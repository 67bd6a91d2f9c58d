// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fileflow/fileflow/cmn/cos"
	"github.com/fileflow/fileflow/cmn/nlog"
	"github.com/fileflow/fileflow/hk"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	pathSenderWS   = "/api/sender/ws"
	pathReceiverWS = "/api/receiver/ws"
	pathDownload   = "/api/download/"
	pathUpload     = "/api/upload/"
	pathMetrics    = "/metrics"
)

const (
	DfltAddr       = "0.0.0.0:8080"
	dfltAckTimeout = 30 * time.Second // PleaseUpload => PleaseUploadAck wait cap

	maxCtrlFrameSize = cos.MiB       // control frames are small; cap decode work
	dfltChunkSize    = 32 * cos.KiB  // upload => download relay unit
	streamTTL        = 10 * time.Minute
	hkStreams        = "streams.evict"
)

type (
	Opts struct {
		Addr       string        // listen address; DfltAddr when empty
		ClientDir  string        // serve client assets from this directory instead of the embedded ones
		AckTimeout time.Duration // overrides dfltAckTimeout (tests)
	}
	// Server bundles the three registries - the only process-wide mutable
	// state - with the HTTP surface that manipulates them.
	Server struct {
		senders    *senderReg
		receivers  *recvReg
		streams    *streamReg
		static     http.Handler
		upgrader   websocket.Upgrader
		addr       string
		ackTimeout time.Duration
	}
)

func New(opts Opts) *Server {
	s := &Server{
		senders:    newSenderReg(),
		receivers:  newRecvReg(),
		streams:    newStreamReg(),
		static:     newStaticHandler(opts.ClientDir),
		addr:       opts.Addr,
		ackTimeout: opts.AckTimeout,
	}
	if s.addr == "" {
		s.addr = DfltAddr
	}
	if s.ackTimeout == 0 {
		s.ackTimeout = dfltAckTimeout
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * cos.KiB,
		WriteBufferSize: 4 * cos.KiB,
		// peers are browsers on arbitrary origins; there is no auth by design
		CheckOrigin: func(*http.Request) bool { return true },
	}
	hk.Reg(hkStreams, func() time.Duration {
		if n := s.streams.housekeep(streamTTL); n > 0 {
			nlog.Warningf("evicted %d stale stream(s)", n)
		}
		return streamTTL / 2
	}, streamTTL/2)
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pathSenderWS, s.senderWS)
	mux.HandleFunc(pathReceiverWS, s.receiverWS)
	mux.HandleFunc(pathDownload, s.downloadHdlr)
	mux.HandleFunc(pathUpload, s.uploadHdlr)
	mux.Handle(pathMetrics, promhttp.Handler())
	mux.Handle("/", s.static)
	return mux
}

func (s *Server) Run() error {
	nlog.Infof("Starting relay at %s", s.addr)
	// no global timeouts: control sockets and transfers are long-lived
	server := &http.Server{Addr: s.addr, Handler: s.Handler()}
	return server.ListenAndServe()
}

func (s *Server) writeErr(w http.ResponseWriter, status int, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if status >= http.StatusInternalServerError {
		nlog.Errorln(msg)
	} else {
		nlog.Infoln(msg)
	}
	http.Error(w, msg, status)
}

// parsePath splits the path remainder after `prefix` into exactly `itemsAfter`
// non-empty segments.
func parsePath(path, prefix string, itemsAfter int) ([]string, error) {
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return nil, fmt.Errorf("invalid URL path %q", path)
	}
	items := strings.Split(rest, "/")
	if len(items) != itemsAfter {
		return nil, fmt.Errorf("invalid URL path %q: expecting %d items after %q", path, itemsAfter, prefix)
	}
	for _, item := range items {
		if item == "" {
			return nil, fmt.Errorf("invalid URL path %q: empty item", path)
		}
	}
	return items, nil
}
