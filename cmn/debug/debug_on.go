//go:build debug

// Package debug provides debug utilities
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"

	"github.com/fileflow/fileflow/cmn/nlog"
)

func ON() bool { return true }

func Infof(format string, a ...any) {
	nlog.InfoDepth(1, fmt.Sprintf(format, a...))
}

func Assert(cond bool, a ...any) {
	if !cond {
		if len(a) > 0 {
			_panic(a...)
		} else {
			panic("DEBUG PANIC")
		}
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		_panic(fmt.Sprintf(format, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		_panic(err)
	}
}

func _panic(a ...any) {
	msg := "DEBUG PANIC: "
	for i, x := range a {
		if i > 0 {
			msg += ", "
		}
		msg += fmt.Sprint(x)
	}
	nlog.ErrorDepth(2, msg)
	nlog.Flush(true)
	panic(msg)
}
