// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"net/http"

	"github.com/fileflow/fileflow/api"
	"github.com/fileflow/fileflow/cmn/cos"
	"github.com/fileflow/fileflow/cmn/nlog"
	"github.com/fileflow/fileflow/stats"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// senderSession is the per-connection state of one sender control socket.
// `id` is written by the read loop only (zero until the first handshake).
type senderSession struct {
	srv *Server
	q   *msgQ
	id  cos.ID
}

// GET /api/sender/ws
func (s *Server) senderWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied 400
		nlog.Warningf("sender ws upgrade: %v", err)
		return
	}
	ss := &senderSession{srv: s, q: newMsgQ()}
	g := &errgroup.Group{}
	g.Go(func() error { return writePump(conn, ss.q) })
	g.Go(func() error {
		defer ss.q.close()
		return ss.readLoop(conn)
	})
	g.Wait()
	conn.Close()
	if !ss.id.IsZero() {
		s.senders.remove(ss.id)
		nlog.Infof("sender %s: disconnected", ss.id)
	}
}

// writePump drains the outbound queue onto the socket; it terminates when the
// queue is closed and drained, or on the first write error (closing the
// connection then unblocks the read loop).
func writePump(conn *websocket.Conn, q *msgQ) error {
	for {
		batch := q.take()
		if batch == nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
		for _, frame := range batch {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				conn.Close()
				return err
			}
		}
	}
}

func (ss *senderSession) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxCtrlFrameSize)
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				nlog.Warningf("sender %s: %v", ss.id, err)
			}
			return nil
		}
		if mt != websocket.TextMessage {
			continue // no binary traffic runs over the control socket
		}
		ss.dispatch(raw)
	}
}

func (ss *senderSession) dispatch(raw []byte) {
	msg, err := api.DecodeFromSender(raw)
	if err != nil {
		stats.DecodeErrCount.Inc()
		nlog.Errorf("sender %s: dropping frame %q: %v", ss.id, raw, err)
		return
	}
	switch msg.Type {
	case api.MsgHandshake:
		ss.handshake(msg.ID)
	case api.MsgPleaseUploadAck:
		if msg.StreamID == nil || msg.Info == nil {
			nlog.Errorf("sender %s: malformed %s", ss.id, msg.Type)
			return
		}
		// missing slot means the download timed out, was cancelled, or raced
		if infoTx := ss.srv.streams.takeInfo(*msg.StreamID); infoTx != nil {
			infoTx <- *msg.Info
		}
	case api.MsgFileList, api.MsgFilesAdded, api.MsgFilesRemoved:
		ss.route(msg.Type, msg.ReceiverID, msg.Files)
	default:
		stats.DecodeErrCount.Inc()
		nlog.Errorf("sender %s: unknown message type %q", ss.id, msg.Type)
	}
}

func (ss *senderSession) handshake(want *cos.ID) {
	if !ss.id.IsZero() {
		// re-handshake on a registered session: reply with the id in use
		ss.q.post(api.Encode(api.AckSender(ss.id)))
		return
	}
	id, err := ss.srv.senders.add(ss.q, want)
	if err != nil {
		// the proposed id is held by a live session: mint a fresh one
		nlog.Warningf("%v - assigning a new id", err)
		id, _ = ss.srv.senders.add(ss.q, nil)
	}
	ss.id = id
	nlog.Infof("sender %s: registered", id)
	ss.q.post(api.Encode(api.AckSender(id)))
}

// Catalogue messages carrying a receiver id go to that one receiver;
// the rest fan out to every receiver owned by this sender.
func (ss *senderSession) route(typ string, receiverID *cos.ID, files []api.File) {
	frame := api.Encode(api.CatalogueUpdate(typ, files))
	switch {
	case receiverID != nil:
		ss.srv.receivers.sendOne(*receiverID, frame)
	case !ss.id.IsZero():
		owner := ss.id
		ss.srv.receivers.sendWhere(frame, func(senderID cos.ID) bool { return senderID == owner })
	}
}
