// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"io"
	"net/http"

	"github.com/fileflow/fileflow/cmn/cos"
	"github.com/fileflow/fileflow/cmn/nlog"
	"github.com/fileflow/fileflow/stats"
	"github.com/pkg/errors"
)

// POST /api/upload/{stream_id}
//
// Takes the data-pipe sending end of the matching stream and forwards the
// request body into it chunk by chunk. The pipe is a rendezvous, so body
// reads throttle to the download consumer's rate.
func (s *Server) uploadHdlr(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErr(w, http.StatusMethodNotAllowed, "%s not allowed", r.Method)
		return
	}
	items, err := parsePath(r.URL.Path, pathUpload, 1)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, "%v", err)
		return
	}
	streamID, err := cos.ParseID(items[0])
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, "%v", err)
		return
	}
	tx := s.streams.takeData(streamID)
	if tx == nil {
		s.writeErr(w, http.StatusNotFound, "stream %s does not exist", streamID)
		return
	}
	stats.UploadCount.Inc()
	defer tx.close() // EOF to the download side on every exit path

	for {
		// a fresh buffer per chunk: ownership moves into the pipe
		buf := make([]byte, dfltChunkSize)
		n, err := r.Body.Read(buf)
		if n > 0 {
			if serr := tx.send(buf[:n]); serr != nil {
				s.writeErr(w, http.StatusBadGateway, "stream %s: %v", streamID, serr)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			nlog.Errorln(errors.Wrapf(err, "upload %s: body read", streamID))
			s.writeErr(w, http.StatusInternalServerError, "stream %s: body read failed", streamID)
			return
		}
	}
	nlog.Infof("upload %s: complete", streamID)
	w.Write([]byte("Transfer successful"))
}
