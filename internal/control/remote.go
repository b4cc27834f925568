// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sustainable-computing-io/carbon-tracker/config"
)

// ErrRemoteUnavailable is returned when the remote control surface is
// disabled or cannot be reached
var ErrRemoteUnavailable = errors.New("remote control surface unavailable")

// HTTPError is a non-2xx reply of the remote control surface
type HTTPError struct {
	Code   int
	Detail any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("remote control surface replied with status %d", e.Code)
}

// Reply renders the error the way it is reported to users
func (e *HTTPError) Reply() Reply {
	return Reply{"status": "http-error", "code": e.Code, "detail": e.Detail}
}

// RelayError is a relayed command that reached the remote control surface
// but got no reply, for example because the client timed out. The remote may
// have acted on it, so it is never retried locally.
type RelayError struct {
	Err error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relayed command failed: %v", e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// Reply renders the error the way it is reported to users
func (e *RelayError) Reply() Reply {
	return Reply{"status": "error", "detail": e.Err.Error()}
}

// ReplyError is an error that is reported to users as a reply
type ReplyError interface {
	error
	Reply() Reply
}

var (
	_ ReplyError = (*HTTPError)(nil)
	_ ReplyError = (*RelayError)(nil)
)

// Remote relays commands to the HTTP control surface of another process.
// The base URL, timeout and token are resolved from the environment on
// every call.
type Remote struct {
	logger    *slog.Logger
	env       config.Env
	transport http.RoundTripper
}

var _ Controller = (*Remote)(nil)

type RemoteOpts struct {
	logger    *slog.Logger
	transport http.RoundTripper
}

// RemoteOptionFn sets one or more options in RemoteOpts
type RemoteOptionFn func(*RemoteOpts)

// WithRemoteLogger sets the logger of the Remote
func WithRemoteLogger(logger *slog.Logger) RemoteOptionFn {
	return func(o *RemoteOpts) {
		o.logger = logger
	}
}

// WithTransport sets the round tripper used for relayed requests
func WithTransport(rt http.RoundTripper) RemoteOptionFn {
	return func(o *RemoteOpts) {
		o.transport = rt
	}
}

// NewRemote returns a Controller relaying to the control surface configured in env
func NewRemote(env config.Env, applyOpts ...RemoteOptionFn) *Remote {
	opts := RemoteOpts{logger: slog.Default(), transport: http.DefaultTransport}
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &Remote{
		logger:    opts.logger.With("service", "carbon-relay"),
		env:       env,
		transport: opts.transport,
	}
}

func (r *Remote) Start(ctx context.Context, req StartRequest) (Reply, error) {
	return r.do(ctx, http.MethodPost, "start", req)
}

func (r *Remote) Stop(ctx context.Context, req StopRequest) (Reply, error) {
	return r.do(ctx, http.MethodPost, "stop", req)
}

func (r *Remote) Status(ctx context.Context) (Reply, error) {
	return r.do(ctx, http.MethodGet, "status", nil)
}

func (r *Remote) do(ctx context.Context, method, action string, payload any) (Reply, error) {
	if !r.env.ControlEnabled() {
		return nil, fmt.Errorf("%w: relay disabled", ErrRemoteUnavailable)
	}
	url := r.env.ControlURL() + "/" + action

	var body io.Reader
	if method != http.MethodGet {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := r.env.ControlToken(); token != "" {
		req.Header.Set(config.TokenHeader, token)
	}

	client := &http.Client{Transport: r.transport, Timeout: r.env.ControlTimeout()}
	resp, err := client.Do(req)
	if err != nil {
		if unreachable(err) {
			return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		return nil, &RelayError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RelayError{Err: fmt.Errorf("failed to read reply: %w", err)}
	}
	r.logger.Debug("Relayed control command", "url", url, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Code: resp.StatusCode, Detail: errorDetail(resp.StatusCode, raw)}
	}
	return successReply(raw), nil
}

// unreachable reports whether err happened before the request was sent
func unreachable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func successReply(raw []byte) Reply {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Reply{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var reply Reply
	if err := dec.Decode(&reply); err != nil || reply == nil {
		return Reply{"status": "ok", "raw": strings.ToValidUTF8(string(raw), "�")}
	}
	return reply
}

func errorDetail(code int, raw []byte) any {
	if len(raw) == 0 {
		return http.StatusText(code)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var detail any
	if err := dec.Decode(&detail); err == nil {
		return detail
	}
	return strings.ToValidUTF8(string(raw), "�")
}
