// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import (
	"time"
	_ "unsafe" // for go:linkname
)

// https://golang.org/pkg/runtime/?m=all#nanotime
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64

func Since(started int64) time.Duration { return time.Duration(NanoTime() - started) }
