// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fileflow/fileflow/api"
	"github.com/fileflow/fileflow/cmn/cos"
	"github.com/fileflow/fileflow/cmn/nlog"
	"github.com/fileflow/fileflow/stats"
)

// GET /api/download/{sender_id}/{file_id}
//
// Creates the per-download stream record, asks the owning sender to upload,
// waits for the file info, then drains the byte pipe as the response body.
func (s *Server) downloadHdlr(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErr(w, http.StatusMethodNotAllowed, "%s not allowed", r.Method)
		return
	}
	items, err := parsePath(r.URL.Path, pathDownload, 2)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, "%v", err)
		return
	}
	senderID, err := cos.ParseID(items[0])
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, "%v", err)
		return
	}
	fileID, err := cos.ParseID(items[1])
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, "%v", err)
		return
	}

	// unknown sender leaks no stream record - check first
	if s.senders.get(senderID) == nil {
		s.writeErr(w, http.StatusNotFound, "sender %s does not exist", senderID)
		return
	}
	streamID, infoRx, pipe := s.streams.add()
	defer s.streams.drop(streamID)
	defer pipe.abort()
	stats.DownloadCount.Inc()

	// best-effort: the sender may be going away right now, in which case
	// the wait below expires
	s.senders.send(senderID, api.Encode(api.PleaseUpload(fileID, streamID)))

	var info api.FileInfo
	select {
	case v, ok := <-infoRx:
		if !ok {
			// slot closed without a value: the stream was torn down
			s.writeErr(w, http.StatusBadGateway, "sender %s aborted stream %s", senderID, streamID)
			return
		}
		info = v
	case <-r.Context().Done():
		nlog.Infof("download %s: client gone before file info", streamID)
		return
	case <-time.After(s.ackTimeout):
		s.writeErr(w, http.StatusGatewayTimeout, "sender %s: no upload ack for stream %s", senderID, streamID)
		return
	}

	w.Header().Set(cos.HdrContentType, guessMime(info.Name))
	// trusting the sender-supplied size; a mismatch surfaces at the client
	w.Header().Set(cos.HdrContentLength, strconv.FormatUint(info.Size, 10))
	w.WriteHeader(http.StatusOK)

	nlog.Infof("download %s: streaming %q (%d B) from sender %s", streamID, info.Name, info.Size, senderID)
	flusher, _ := w.(http.Flusher)
	ctx := r.Context()
	for {
		select {
		case chunk, ok := <-pipe.ch:
			if !ok {
				return // upstream EOF
			}
			if _, err := w.Write(chunk); err != nil {
				nlog.Warningf("download %s: client gone mid-transfer: %v", streamID, err)
				return // deferred abort cuts the upload
			}
			stats.TxBytes.Add(float64(len(chunk)))
			if flusher != nil {
				flusher.Flush()
			}
		case <-ctx.Done():
			nlog.Warningf("download %s: client gone mid-transfer", streamID)
			return
		case <-pipe.done:
			// housekeeping evicted the stream (acked but never uploaded)
			nlog.Warningf("download %s: stream evicted mid-transfer", streamID)
			return
		}
	}
}

func guessMime(name string) string {
	if ctype := mime.TypeByExtension(filepath.Ext(name)); ctype != "" {
		return ctype
	}
	return cos.ContentBinary
}
