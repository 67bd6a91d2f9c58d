// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package hk_test

import (
	"sync/atomic"
	"time"

	"github.com/fileflow/fileflow/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("should register the callback and fire it at the start", func() {
		var fired atomic.Int64
		hk.Reg("fire-now", func() time.Duration {
			fired.Add(1)
			return time.Hour
		})
		defer hk.Unreg("fire-now")

		Eventually(func() int64 { return fired.Load() }, time.Second, 10*time.Millisecond).
			Should(BeEquivalentTo(1))
		Consistently(func() int64 { return fired.Load() }, 300*time.Millisecond, 50*time.Millisecond).
			Should(BeEquivalentTo(1))
	})

	It("should honor the initial interval", func() {
		var fired atomic.Bool
		hk.Reg("fire-later", func() time.Duration {
			fired.Store(true)
			return time.Hour
		}, 300*time.Millisecond)
		defer hk.Unreg("fire-later")

		Consistently(fired.Load, 150*time.Millisecond, 20*time.Millisecond).Should(BeFalse())
		Eventually(fired.Load, time.Second, 20*time.Millisecond).Should(BeTrue())
	})

	It("should fire repeatedly at the returned interval", func() {
		var fired atomic.Int64
		hk.Reg("fire-often", func() time.Duration {
			fired.Add(1)
			return 100 * time.Millisecond
		})
		defer hk.Unreg("fire-often")

		Eventually(func() int64 { return fired.Load() }, 2*time.Second, 20*time.Millisecond).
			Should(BeNumerically(">=", 3))
	})

	It("should not fire after Unreg", func() {
		var fired atomic.Int64
		hk.Reg("fire-once", func() time.Duration {
			fired.Add(1)
			return 100 * time.Millisecond
		})
		Eventually(func() int64 { return fired.Load() }, time.Second, 10*time.Millisecond).
			Should(BeNumerically(">=", 1))

		hk.Unreg("fire-once")
		time.Sleep(100 * time.Millisecond) // let a possibly in-flight tick land
		n := fired.Load()
		Consistently(func() int64 { return fired.Load() }, 400*time.Millisecond, 50*time.Millisecond).
			Should(BeEquivalentTo(n))
	})
})
