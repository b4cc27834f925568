// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
)

// journal records the order in which services are called
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeService struct {
	name    string
	journal *journal
}

func (f *fakeService) Name() string {
	return f.name
}

type fakeInitShutdown struct {
	fakeService
	initErr       error
	shutdownErr   error
	initCount     int
	shutdownCount int
}

func (f *fakeInitShutdown) Init() error {
	f.initCount++
	f.journal.add("init " + f.name)
	return f.initErr
}

func (f *fakeInitShutdown) Shutdown() error {
	f.shutdownCount++
	f.journal.add("shutdown " + f.name)
	return f.shutdownErr
}

type fakeShutdowner struct {
	fakeService
	shutdownCount int
}

func (f *fakeShutdowner) Shutdown() error {
	f.shutdownCount++
	f.journal.add("shutdown " + f.name)
	return nil
}

type fakeRunner struct {
	fakeService
	runFn         func(ctx context.Context) error
	shutdownErr   error
	mu            sync.Mutex
	runCount      int
	shutdownCount int
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runCount++
	f.mu.Unlock()
	if f.runFn != nil {
		return f.runFn(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeRunner) Shutdown() error {
	f.mu.Lock()
	f.shutdownCount++
	f.mu.Unlock()
	f.journal.add("shutdown " + f.name)
	return f.shutdownErr
}
