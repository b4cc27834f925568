// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
)

// Control tags identifying which surface served a reply
const (
	TagHTTP  = "http"
	TagLocal = "local"
)

// StatusNotRunning is the reply status of a stop without a running session
const StatusNotRunning = "not-running"

// Reply is the JSON object returned by a control command
type Reply map[string]any

// Controller executes control commands
type Controller interface {
	Start(ctx context.Context, req StartRequest) (Reply, error)
	Stop(ctx context.Context, req StopRequest) (Reply, error)
	Status(ctx context.Context) (Reply, error)
}

// Sessions is the part of the session manager used by the control surface
type Sessions interface {
	Start(opts session.StartOptions) (*session.StartResult, error)
	Stop(opts session.StopOptions) (*session.Summary, error)
	Status() session.Report
}

// Local executes commands on an in-process session manager
type Local struct {
	sessions Sessions
	tag      string
}

var _ Controller = (*Local)(nil)

// NewLocal returns a Controller acting on sessions whose replies carry tag
func NewLocal(sessions Sessions, tag string) *Local {
	return &Local{sessions: sessions, tag: tag}
}

func (l *Local) Start(_ context.Context, req StartRequest) (Reply, error) {
	res, err := l.sessions.Start(req.Options())
	if err != nil {
		return nil, err
	}
	return tagged(res, l.tag)
}

func (l *Local) Stop(_ context.Context, req StopRequest) (Reply, error) {
	summary, err := l.sessions.Stop(req.Options())
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return Reply{"status": StatusNotRunning, "control": l.tag}, nil
	}
	return tagged(summary, l.tag)
}

func (l *Local) Status(context.Context) (Reply, error) {
	return tagged(l.sessions.Status(), l.tag)
}

// tagged converts v to a Reply and sets its control tag unless v has one
func tagged(v any, tag string) (Reply, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	reply := Reply{}
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if _, ok := reply["control"]; !ok {
		reply["control"] = tag
	}
	return reply, nil
}

// Fallback runs commands on a primary Controller and retries them on a
// secondary one when the primary is unavailable
type Fallback struct {
	logger    *slog.Logger
	primary   Controller
	secondary Controller
}

var _ Controller = (*Fallback)(nil)

// NewFallback returns a Controller preferring primary over secondary
func NewFallback(primary, secondary Controller, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{logger: logger, primary: primary, secondary: secondary}
}

func (f *Fallback) Start(ctx context.Context, req StartRequest) (Reply, error) {
	reply, err := f.primary.Start(ctx, req)
	if f.unavailable(err) {
		return f.secondary.Start(ctx, req)
	}
	return reply, err
}

func (f *Fallback) Stop(ctx context.Context, req StopRequest) (Reply, error) {
	reply, err := f.primary.Stop(ctx, req)
	if f.unavailable(err) {
		return f.secondary.Stop(ctx, req)
	}
	return reply, err
}

func (f *Fallback) Status(ctx context.Context) (Reply, error) {
	reply, err := f.primary.Status(ctx)
	if f.unavailable(err) {
		return f.secondary.Status(ctx)
	}
	return reply, err
}

func (f *Fallback) unavailable(err error) bool {
	if !errors.Is(err, ErrRemoteUnavailable) {
		return false
	}
	f.logger.Debug("Remote control surface unavailable, acting locally", "reason", err)
	return true
}
