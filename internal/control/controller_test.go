// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
)

func TestLocal(t *testing.T) {
	m := newTestManager(t, testEnv(t, nil))
	local := NewLocal(m, TagLocal)
	ctx := context.Background()

	reply, err := local.Stop(ctx, StopRequest{})
	require.NoError(t, err)
	assert.Equal(t, Reply{"status": StatusNotRunning, "control": TagLocal}, reply)

	reply, err = local.Start(ctx, StartRequest{Scenario: "db"})
	require.NoError(t, err)
	assert.Equal(t, session.StatusStarted, reply["status"])
	assert.Equal(t, TagLocal, reply["control"])
	assert.Equal(t, "db", reply["state"].(map[string]any)["scenario"])

	reply, err = local.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, reply["running"])
	assert.Nil(t, reply["last_summary"])

	reply, err = local.Stop(ctx, StopRequest{Reason: "done"})
	require.NoError(t, err)
	assert.Equal(t, "db", reply["scenario"])
	assert.Equal(t, "done", reply["reason"])
	assert.Equal(t, TagLocal, reply["control"])
	assert.Contains(t, reply, "readable")

	reply, err = local.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, false, reply["running"])
	assert.Equal(t, map[string]any{}, reply["state"])
	assert.NotNil(t, reply["last_summary"])
}

func TestTagged_KeepsExistingTag(t *testing.T) {
	reply, err := tagged(map[string]any{"control": "http", "n": 1}, TagLocal)
	require.NoError(t, err)
	assert.Equal(t, "http", reply["control"])
	assert.Equal(t, "1", fmt.Sprint(reply["n"]))

	_, err = tagged(func() {}, TagLocal)
	assert.Error(t, err)
}

type mockController struct {
	mock.Mock
}

func (m *mockController) Start(ctx context.Context, req StartRequest) (Reply, error) {
	args := m.Called(ctx, req)
	reply, _ := args.Get(0).(Reply)
	return reply, args.Error(1)
}

func (m *mockController) Stop(ctx context.Context, req StopRequest) (Reply, error) {
	args := m.Called(ctx, req)
	reply, _ := args.Get(0).(Reply)
	return reply, args.Error(1)
}

func (m *mockController) Status(ctx context.Context) (Reply, error) {
	args := m.Called(ctx)
	reply, _ := args.Get(0).(Reply)
	return reply, args.Error(1)
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	unavailable := fmt.Errorf("%w: connection refused", ErrRemoteUnavailable)

	t.Run("primary answers", func(t *testing.T) {
		primary, secondary := &mockController{}, &mockController{}
		primary.On("Status", ctx).Return(Reply{"control": TagHTTP}, nil)

		reply, err := NewFallback(primary, secondary, discardLogger()).Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, TagHTTP, reply["control"])
		secondary.AssertNotCalled(t, "Status", mock.Anything)
	})

	t.Run("primary unavailable", func(t *testing.T) {
		primary, secondary := &mockController{}, &mockController{}
		req := StartRequest{Scenario: "web"}
		primary.On("Start", ctx, req).Return(nil, unavailable)
		secondary.On("Start", ctx, req).Return(Reply{"control": TagLocal}, nil)

		reply, err := NewFallback(primary, secondary, discardLogger()).Start(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, TagLocal, reply["control"])
		primary.AssertExpectations(t)
		secondary.AssertExpectations(t)
	})

	t.Run("http errors do not fall back", func(t *testing.T) {
		primary, secondary := &mockController{}, &mockController{}
		httpErr := &HTTPError{Code: 403, Detail: map[string]any{"error": "unauthorized"}}
		primary.On("Stop", ctx, StopRequest{}).Return(nil, httpErr)

		_, err := NewFallback(primary, secondary, discardLogger()).Stop(ctx, StopRequest{})
		var he *HTTPError
		require.True(t, errors.As(err, &he))
		assert.Equal(t, 403, he.Code)
		assert.Equal(t, "http-error", he.Reply()["status"])
		secondary.AssertNotCalled(t, "Stop", mock.Anything, mock.Anything)
	})

	t.Run("relay errors do not fall back", func(t *testing.T) {
		primary, secondary := &mockController{}, &mockController{}
		req := StartRequest{Scenario: "web"}
		primary.On("Start", ctx, req).Return(nil, &RelayError{Err: context.DeadlineExceeded})

		_, err := NewFallback(primary, secondary, discardLogger()).Start(ctx, req)
		var re ReplyError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, Reply{"status": "error", "detail": "context deadline exceeded"}, re.Reply())
		secondary.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	})

	t.Run("stop falls back", func(t *testing.T) {
		primary, secondary := &mockController{}, &mockController{}
		primary.On("Stop", ctx, StopRequest{}).Return(nil, unavailable)
		secondary.On("Stop", ctx, StopRequest{}).Return(Reply{"status": StatusNotRunning}, nil)

		reply, err := NewFallback(primary, secondary, nil).Stop(ctx, StopRequest{})
		require.NoError(t, err)
		assert.Equal(t, StatusNotRunning, reply["status"])
	})
}
