// Package api: control-plane message schema shared by the relay and its peers
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package api

import (
	"github.com/fileflow/fileflow/cmn/cos"
	jsoniter "github.com/json-iterator/go"
)

var js = jsoniter.ConfigFastest

// Every control frame is a UTF-8 JSON object tagged by "type".
const (
	MsgHandshake       = "Handshake"
	MsgHandshakeAck    = "HandshakeAck"
	MsgPleaseUpload    = "PleaseUpload"
	MsgPleaseUploadAck = "PleaseUploadAck"
	MsgPleaseFileList  = "PleaseFileList"
	MsgFileList        = "FileList"
	MsgFilesAdded      = "FilesAdded"
	MsgFilesRemoved    = "FilesRemoved"
)

type (
	// File is a catalogue entry; the `id` is whatever string the sender
	// chose - the relay never interprets it.
	File struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Size uint64 `json:"size"`
	}

	// FileInfo accompanies PleaseUploadAck and drives the download headers.
	FileInfo struct {
		Name string `json:"name"`
		Size uint64 `json:"size"`
	}

	// FromSender: client => relay on the sender socket.
	// Variants: Handshake{id?}, PleaseUploadAck{stream_id, info},
	// FileList|FilesAdded|FilesRemoved{receiver_id?, files}.
	FromSender struct {
		Type       string    `json:"type"`
		ID         *cos.ID   `json:"id,omitempty"`
		StreamID   *cos.ID   `json:"stream_id,omitempty"`
		Info       *FileInfo `json:"info,omitempty"`
		ReceiverID *cos.ID   `json:"receiver_id,omitempty"`
		Files      []File    `json:"files,omitempty"`
	}

	// ToSender: relay => sender.
	// Variants: HandshakeAck{id}, PleaseUpload{file_id, stream_id},
	// PleaseFileList{receiver_id}.
	ToSender struct {
		Type       string  `json:"type"`
		ID         *cos.ID `json:"id,omitempty"`
		FileID     *cos.ID `json:"file_id,omitempty"`
		StreamID   *cos.ID `json:"stream_id,omitempty"`
		ReceiverID *cos.ID `json:"receiver_id,omitempty"`
	}

	// FromReceiver: client => relay on the receiver socket.
	// Variants: Handshake{sender_id, id?}, PleaseUpload{file_id, stream_id},
	// PleaseFileList{}.
	FromReceiver struct {
		Type     string  `json:"type"`
		SenderID *cos.ID `json:"sender_id,omitempty"`
		ID       *cos.ID `json:"id,omitempty"`
		FileID   *cos.ID `json:"file_id,omitempty"`
		StreamID *cos.ID `json:"stream_id,omitempty"`
	}

	// ToReceiver: relay => receiver.
	// Variants: HandshakeAck{id}, FileList|FilesAdded|FilesRemoved{files}.
	ToReceiver struct {
		Type  string  `json:"type"`
		ID    *cos.ID `json:"id,omitempty"`
		Files []File  `json:"files,omitempty"`
	}
)

//
// constructors (relay => peer)
//

func AckSender(id cos.ID) *ToSender { return &ToSender{Type: MsgHandshakeAck, ID: &id} }

func PleaseUpload(fileID, streamID cos.ID) *ToSender {
	return &ToSender{Type: MsgPleaseUpload, FileID: &fileID, StreamID: &streamID}
}

func PleaseFileList(receiverID cos.ID) *ToSender {
	return &ToSender{Type: MsgPleaseFileList, ReceiverID: &receiverID}
}

func AckReceiver(id cos.ID) *ToReceiver { return &ToReceiver{Type: MsgHandshakeAck, ID: &id} }

// CatalogueUpdate mirrors a sender-originated catalogue message
// (FileList, FilesAdded, FilesRemoved) to the receiver-facing schema.
func CatalogueUpdate(typ string, files []File) *ToReceiver {
	return &ToReceiver{Type: typ, Files: files}
}

//
// encode/decode
//

func Encode(msg any) []byte {
	b, err := js.Marshal(msg)
	if err != nil {
		// all message types marshal by construction
		panic(err)
	}
	return b
}

func DecodeFromSender(b []byte) (*FromSender, error) {
	msg := &FromSender{}
	if err := js.Unmarshal(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func DecodeFromReceiver(b []byte) (*FromReceiver, error) {
	msg := &FromReceiver{}
	if err := js.Unmarshal(b, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
