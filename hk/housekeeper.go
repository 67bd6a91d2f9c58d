// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"time"

	"github.com/fileflow/fileflow/cmn/debug"
	"github.com/fileflow/fileflow/cmn/mono"
)

const DayInterval = 24 * time.Hour

// CleanupFunc is called when its timer fires and returns
// the interval to wait until the next call.
type CleanupFunc func() time.Duration

type (
	request struct {
		name            string
		f               CleanupFunc
		initialInterval time.Duration
		registering     bool
	}
	timedAction struct {
		name       string
		f          CleanupFunc
		updateTime int64
	}
	actions []*timedAction

	housekeeper struct {
		stopCh  chan struct{}
		sigCh   chan request
		actions *actions
		timer   *time.Timer
		running bool
	}
)

var defaultHK *housekeeper

func init() {
	defaultHK = &housekeeper{
		stopCh:  make(chan struct{}),
		sigCh:   make(chan request, 16),
		actions: &actions{},
	}
	heap.Init(defaultHK.actions)
	go defaultHK.run()
}

// Reg registers a cleanup callback under a unique name. Without an initial
// interval the callback fires right away.
func Reg(name string, f CleanupFunc, initialInterval ...time.Duration) {
	var ival time.Duration
	if len(initialInterval) > 0 {
		ival = initialInterval[0]
	}
	defaultHK.sigCh <- request{
		name:            name,
		f:               f,
		initialInterval: ival,
		registering:     true,
	}
}

func Unreg(name string) {
	defaultHK.sigCh <- request{name: name}
}

//
// timed-action heap
//

func (a actions) Len() int            { return len(a) }
func (a actions) Less(i, j int) bool  { return a[i].updateTime < a[j].updateTime }
func (a actions) Swap(i, j int)       { a[i], a[j] = a[j], a[i] }
func (a actions) Peek() *timedAction  { return a[0] }
func (a *actions) Push(x any)         { *a = append(*a, x.(*timedAction)) }
func (a *actions) Pop() any {
	old := *a
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*a = old[:n-1]
	return item
}

//
// housekeeper
//

func (hk *housekeeper) run() {
	hk.timer = time.NewTimer(DayInterval)
	defer hk.timer.Stop()
	for {
		select {
		case <-hk.stopCh:
			return
		case <-hk.timer.C:
			hk.updateTimer()
		case req := <-hk.sigCh:
			if req.registering {
				hk.reg(req)
			} else {
				hk.unreg(req.name)
			}
		}
	}
}

func (hk *housekeeper) reg(req request) {
	debug.Assert(req.f != nil, req.name)
	hk.unreg(req.name) // idempotent re-registration
	heap.Push(hk.actions, &timedAction{
		name:       req.name,
		f:          req.f,
		updateTime: mono.NanoTime() + req.initialInterval.Nanoseconds(),
	})
	hk.updateTimer()
}

func (hk *housekeeper) unreg(name string) {
	for i, action := range *hk.actions {
		if action.name == name {
			heap.Remove(hk.actions, i)
			return
		}
	}
}

// fire everything that is due, then re-arm the timer for the soonest action
func (hk *housekeeper) updateTimer() {
	for hk.actions.Len() > 0 {
		now := mono.NanoTime()
		item := hk.actions.Peek()
		if item.updateTime > now {
			hk.timer.Reset(time.Duration(item.updateTime - now))
			return
		}
		interval := item.f()
		item.updateTime = now + interval.Nanoseconds()
		heap.Fix(hk.actions, 0)
	}
	hk.timer.Reset(DayInterval)
}
