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

// recvSession is the per-connection state of one receiver control socket.
// Both ids are written by the read loop only; senderID is whatever the peer
// claimed at handshake and never changes (the owning sender may not exist -
// requests addressed to it then simply have no effect).
type recvSession struct {
	srv      *Server
	q        *msgQ
	id       cos.ID
	senderID cos.ID
}

// GET /api/receiver/ws
func (s *Server) receiverWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		nlog.Warningf("receiver ws upgrade: %v", err)
		return
	}
	rs := &recvSession{srv: s, q: newMsgQ()}
	g := &errgroup.Group{}
	g.Go(func() error { return writePump(conn, rs.q) })
	g.Go(func() error {
		defer rs.q.close()
		return rs.readLoop(conn)
	})
	g.Wait()
	conn.Close()
	if !rs.id.IsZero() {
		s.receivers.remove(rs.id)
		nlog.Infof("receiver %s: disconnected", rs.id)
	}
}

func (rs *recvSession) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxCtrlFrameSize)
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				nlog.Warningf("receiver %s: %v", rs.id, err)
			}
			return nil
		}
		if mt != websocket.TextMessage {
			continue
		}
		rs.dispatch(raw)
	}
}

func (rs *recvSession) dispatch(raw []byte) {
	msg, err := api.DecodeFromReceiver(raw)
	if err != nil {
		stats.DecodeErrCount.Inc()
		nlog.Errorf("receiver %s: dropping frame %q: %v", rs.id, raw, err)
		return
	}
	switch msg.Type {
	case api.MsgHandshake:
		if msg.SenderID == nil {
			nlog.Errorf("receiver %s: handshake without sender_id", rs.id)
			return
		}
		rs.handshake(*msg.SenderID, msg.ID)
	case api.MsgPleaseUpload:
		if msg.FileID == nil || msg.StreamID == nil {
			nlog.Errorf("receiver %s: malformed %s", rs.id, msg.Type)
			return
		}
		if !rs.id.IsZero() {
			rs.srv.senders.send(rs.senderID, api.Encode(api.PleaseUpload(*msg.FileID, *msg.StreamID)))
		}
	case api.MsgPleaseFileList:
		if !rs.id.IsZero() {
			rs.srv.senders.send(rs.senderID, api.Encode(api.PleaseFileList(rs.id)))
		}
	default:
		stats.DecodeErrCount.Inc()
		nlog.Errorf("receiver %s: unknown message type %q", rs.id, msg.Type)
	}
}

func (rs *recvSession) handshake(senderID cos.ID, want *cos.ID) {
	if !rs.id.IsZero() {
		// re-handshake: keep the registration, reply with the id in use
		rs.q.post(api.Encode(api.AckReceiver(rs.id)))
		return
	}
	id, err := rs.srv.receivers.add(senderID, rs.q, want)
	if err != nil {
		nlog.Warningf("%v - assigning a new id", err)
		id, _ = rs.srv.receivers.add(senderID, rs.q, nil)
	}
	rs.id, rs.senderID = id, senderID
	nlog.Infof("receiver %s: registered with sender %s", id, senderID)
	rs.q.post(api.Encode(api.AckReceiver(id)))
}
