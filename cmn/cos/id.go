// Package cos provides common low-level types and utilities for all fileflow packages
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	LenID    = 16 // 128 bits
	LenIDStr = 22 // raw-url base64, no padding
)

// ID is an opaque 128-bit identifier. The all-zero value is reserved
// and stands for "no ID" - the generator never returns it, and parsing
// rejects it on the wire.
type ID [LenID]byte

// IDNone is the reserved all-zero ID.
var IDNone ID

// GenID returns a cryptographically random, non-zero ID.
// Safe for concurrent use.
func GenID() (id ID) {
	for {
		if _, err := rand.Read(id[:]); err != nil {
			// crypto/rand never fails on supported platforms
			ExitLogf("crypto random: %v", err)
		}
		if !id.IsZero() {
			return
		}
	}
}

func (id ID) IsZero() bool { return id == IDNone }

// String returns the 22-character raw-url base64 form;
// the reserved zero ID prints as a distinguished marker.
func (id ID) String() string {
	if id.IsZero() {
		return "<none>"
	}
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// ParseID decodes the 22-character raw-url base64 form.
// The zero ID is rejected - it must never appear on the wire.
func ParseID(s string) (id ID, err error) {
	if len(s) != LenIDStr {
		return id, fmt.Errorf("invalid ID %q: expecting %d characters", s, LenIDStr)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid ID %q: %v", s, err)
	}
	copy(id[:], b)
	if id.IsZero() {
		return IDNone, fmt.Errorf("invalid ID %q: reserved zero value", s)
	}
	return id, nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + id.String() + `"`), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid ID: not a string: %s", b)
	}
	parsed, err := ParseID(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
