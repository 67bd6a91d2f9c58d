// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fileflow/fileflow/api"
	"github.com/fileflow/fileflow/cmn/cos"
	"github.com/fileflow/fileflow/tools/tassert"
	"github.com/gorilla/websocket"
)

const testTimeout = 3 * time.Second

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	srv := New(Opts{AckTimeout: testTimeout})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialWS(t *testing.T, tsURL, path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(tsURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	tassert.CheckFatal(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	b, err := json.Marshal(msg)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, conn.WriteMessage(websocket.TextMessage, b))
}

func readJSON(t *testing.T, conn *websocket.Conn, out any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, raw, err := conn.ReadMessage()
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, json.Unmarshal(raw, out))
}

// expectSilence asserts that nothing arrives on the socket within the window.
func expectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(window))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no message, got %s", raw)
	}
}

func handshakeSender(t *testing.T, conn *websocket.Conn) cos.ID {
	t.Helper()
	writeJSON(t, conn, &api.FromSender{Type: api.MsgHandshake})
	var ack api.ToSender
	readJSON(t, conn, &ack)
	tassert.Fatalf(t, ack.Type == api.MsgHandshakeAck && ack.ID != nil, "bad handshake ack %+v", ack)
	return *ack.ID
}

func handshakeReceiver(t *testing.T, conn *websocket.Conn, senderID cos.ID) cos.ID {
	t.Helper()
	writeJSON(t, conn, &api.FromReceiver{Type: api.MsgHandshake, SenderID: &senderID})
	var ack api.ToReceiver
	readJSON(t, conn, &ack)
	tassert.Fatalf(t, ack.Type == api.MsgHandshakeAck && ack.ID != nil, "bad handshake ack %+v", ack)
	return *ack.ID
}

func TestDownloadHappyPath(t *testing.T) {
	srv, ts := newTestServer(t)
	sender := dialWS(t, ts.URL, pathSenderWS)
	senderID := handshakeSender(t, sender)

	payload := []byte{1, 2, 3}
	fileID := cos.GenID()

	// the sender peer: ack the upload request, then deliver the bytes
	go func() {
		sender.SetReadDeadline(time.Now().Add(testTimeout))
		_, raw, err := sender.ReadMessage()
		if err != nil {
			return
		}
		var req api.ToSender
		if json.Unmarshal(raw, &req) != nil || req.Type != api.MsgPleaseUpload {
			return
		}
		b, _ := json.Marshal(&api.FromSender{
			Type:     api.MsgPleaseUploadAck,
			StreamID: req.StreamID,
			Info:     &api.FileInfo{Name: "a.bin", Size: uint64(len(payload))},
		})
		sender.WriteMessage(websocket.TextMessage, b)
		http.Post(ts.URL+pathUpload+req.StreamID.String(), cos.ContentBinary, bytes.NewReader(payload))
	}()

	resp, err := http.Get(ts.URL + pathDownload + senderID.String() + "/" + fileID.String())
	tassert.CheckFatal(t, err)
	defer resp.Body.Close()
	tassert.Fatalf(t, resp.StatusCode == http.StatusOK, "unexpected status %d", resp.StatusCode)
	tassert.Errorf(t, resp.Header.Get(cos.HdrContentType) == cos.ContentBinary,
		"unexpected content type %q", resp.Header.Get(cos.HdrContentType))
	tassert.Errorf(t, resp.ContentLength == int64(len(payload)),
		"unexpected content length %d", resp.ContentLength)

	body, err := io.ReadAll(resp.Body)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, bytes.Equal(body, payload), "body mismatch: %v", body)

	// nothing left behind
	tassert.Errorf(t, srv.streams.count() == 0, "stream record leaked")
}

func TestCatalogueBroadcast(t *testing.T) {
	_, ts := newTestServer(t)
	sender := dialWS(t, ts.URL, pathSenderWS)
	senderID := handshakeSender(t, sender)

	r1 := dialWS(t, ts.URL, pathReceiverWS)
	r2 := dialWS(t, ts.URL, pathReceiverWS)
	r3 := dialWS(t, ts.URL, pathReceiverWS)
	handshakeReceiver(t, r1, senderID)
	handshakeReceiver(t, r2, senderID)
	handshakeReceiver(t, r3, cos.GenID()) // bound to an unrelated sender

	files := []api.File{{ID: "F7", Name: "a.bin", Size: 3}}
	writeJSON(t, sender, &api.FromSender{Type: api.MsgFilesAdded, Files: files})

	for _, conn := range []*websocket.Conn{r1, r2} {
		var got api.ToReceiver
		readJSON(t, conn, &got)
		tassert.Errorf(t, got.Type == api.MsgFilesAdded, "unexpected message %+v", got)
		tassert.Errorf(t, len(got.Files) == 1 && got.Files[0].ID == "F7", "unexpected files %+v", got.Files)
	}
	expectSilence(t, r3, 200*time.Millisecond)
}

func TestTargetedFileList(t *testing.T) {
	_, ts := newTestServer(t)
	sender := dialWS(t, ts.URL, pathSenderWS)
	senderID := handshakeSender(t, sender)

	r1 := dialWS(t, ts.URL, pathReceiverWS)
	r2 := dialWS(t, ts.URL, pathReceiverWS)
	r1ID := handshakeReceiver(t, r1, senderID)
	handshakeReceiver(t, r2, senderID)

	writeJSON(t, r1, &api.FromReceiver{Type: api.MsgPleaseFileList})

	var req api.ToSender
	readJSON(t, sender, &req)
	tassert.Fatalf(t, req.Type == api.MsgPleaseFileList, "unexpected message %+v", req)
	tassert.Fatalf(t, req.ReceiverID != nil && *req.ReceiverID == r1ID, "wrong receiver id %+v", req.ReceiverID)

	files := []api.File{{ID: "F7", Name: "a.bin", Size: 3}}
	writeJSON(t, sender, &api.FromSender{Type: api.MsgFileList, ReceiverID: req.ReceiverID, Files: files})

	var got api.ToReceiver
	readJSON(t, r1, &got)
	tassert.Errorf(t, got.Type == api.MsgFileList && len(got.Files) == 1, "unexpected message %+v", got)
	expectSilence(t, r2, 200*time.Millisecond)
}

func TestReHandshake(t *testing.T) {
	srv, ts := newTestServer(t)
	sender := dialWS(t, ts.URL, pathSenderWS)
	senderID := handshakeSender(t, sender)

	// second handshake on the same socket: same id, no new registration
	proposed := cos.GenID()
	writeJSON(t, sender, &api.FromSender{Type: api.MsgHandshake, ID: &proposed})
	var ack api.ToSender
	readJSON(t, sender, &ack)
	tassert.Fatalf(t, *ack.ID == senderID, "re-handshake must return the registered id")
	tassert.Errorf(t, srv.senders.count() == 1, "re-handshake must not register anew")
}

func TestHandshakeWithProposedID(t *testing.T) {
	srv, ts := newTestServer(t)
	want := cos.GenID()

	s1 := dialWS(t, ts.URL, pathSenderWS)
	writeJSON(t, s1, &api.FromSender{Type: api.MsgHandshake, ID: &want})
	var ack api.ToSender
	readJSON(t, s1, &ack)
	tassert.Fatalf(t, *ack.ID == want, "proposed free id must be installed")

	// same id proposed while held by a live session: a fresh one is minted
	s2 := dialWS(t, ts.URL, pathSenderWS)
	writeJSON(t, s2, &api.FromSender{Type: api.MsgHandshake, ID: &want})
	readJSON(t, s2, &ack)
	tassert.Fatalf(t, !ack.ID.IsZero() && *ack.ID != want, "collision must mint a fresh id")
	tassert.Errorf(t, srv.senders.count() == 2, "expected 2 senders, have %d", srv.senders.count())
}

func TestSenderDisconnectCleanup(t *testing.T) {
	srv, ts := newTestServer(t)
	sender := dialWS(t, ts.URL, pathSenderWS)
	senderID := handshakeSender(t, sender)
	sender.Close()

	// session cleanup is asynchronous
	deadline := time.Now().Add(testTimeout)
	for srv.senders.get(senderID) != nil {
		if time.Now().After(deadline) {
			t.Fatal("sender record not removed after socket close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDownloadUnknownSender(t *testing.T) {
	srv, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + pathDownload + cos.GenID().String() + "/" + cos.GenID().String())
	tassert.CheckFatal(t, err)
	resp.Body.Close()
	tassert.Errorf(t, resp.StatusCode == http.StatusNotFound, "unexpected status %d", resp.StatusCode)
	tassert.Errorf(t, srv.streams.count() == 0, "unknown sender must leak no stream record")
}

func TestDownloadBadID(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + pathDownload + "not-a-valid-id/neither-is-this")
	tassert.CheckFatal(t, err)
	resp.Body.Close()
	tassert.Errorf(t, resp.StatusCode == http.StatusBadRequest, "unexpected status %d", resp.StatusCode)
}

func TestUploadUnknownStream(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+pathUpload+cos.GenID().String(), cos.ContentBinary, bytes.NewReader([]byte{1}))
	tassert.CheckFatal(t, err)
	resp.Body.Close()
	tassert.Errorf(t, resp.StatusCode == http.StatusNotFound, "unexpected status %d", resp.StatusCode)
}

func TestDownloadAbortedByReceiver(t *testing.T) {
	srv, ts := newTestServer(t)
	sender := dialWS(t, ts.URL, pathSenderWS)
	senderID := handshakeSender(t, sender)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
			ts.URL+pathDownload+senderID.String()+"/"+cos.GenID().String(), nil)
		http.DefaultClient.Do(req)
	}()

	// the relay asked our sender to upload
	var req api.ToSender
	readJSON(t, sender, &req)
	tassert.Fatalf(t, req.Type == api.MsgPleaseUpload, "unexpected message %+v", req)

	// the download client goes away before any bytes moved
	cancel()
	deadline := time.Now().Add(testTimeout)
	for srv.streams.count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("zombie stream record after client abort")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// the late upload finds nothing to pair with
	resp, err := http.Post(ts.URL+pathUpload+req.StreamID.String(), cos.ContentBinary, bytes.NewReader([]byte{1}))
	tassert.CheckFatal(t, err)
	resp.Body.Close()
	tassert.Errorf(t, resp.StatusCode == http.StatusNotFound, "unexpected status %d", resp.StatusCode)
}

func TestMalformedFramesIgnored(t *testing.T) {
	srv, ts := newTestServer(t)
	sender := dialWS(t, ts.URL, pathSenderWS)

	// garbage and binary frames before the handshake: session survives
	tassert.CheckFatal(t, sender.WriteMessage(websocket.TextMessage, []byte("not json")))
	tassert.CheckFatal(t, sender.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad}))

	senderID := handshakeSender(t, sender)
	tassert.Errorf(t, srv.senders.get(senderID) != nil, "session did not survive malformed frames")
}
