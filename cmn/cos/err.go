// Package cos provides common low-level types and utilities for all fileflow packages
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"os"

	"github.com/fileflow/fileflow/cmn/nlog"
)

type (
	ErrNotFound struct {
		what string
	}
	ErrAlreadyRegistered struct {
		kind string
		id   fmt.Stringer
	}
)

// ErrNotFound

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}

func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func IsErrNotFound(err error) bool {
	var enf *ErrNotFound
	return errors.As(err, &enf)
}

// ErrAlreadyRegistered

func NewErrAlreadyRegistered(kind string, id fmt.Stringer) *ErrAlreadyRegistered {
	return &ErrAlreadyRegistered{kind, id}
}

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("%s %s is already registered", e.kind, e.id)
}

func IsErrAlreadyRegistered(err error) bool {
	var ear *ErrAlreadyRegistered
	return errors.As(err, &ear)
}

// ExitLogf flushes the log and terminates the process.
func ExitLogf(format string, a ...any) {
	nlog.Errorf(format, a...)
	nlog.Flush(true)
	fmt.Fprintf(os.Stderr, "FATAL ERROR: "+format+"\n", a...)
	os.Exit(1)
}
