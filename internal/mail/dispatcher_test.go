// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package mail

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kyonggi-board/authcore/pkg/errutil"
)

func newTestDispatcher(t *testing.T, next *fakeSender, cfg DispatcherConfig) (*Dispatcher, *DispatcherMetrics) {
	t.Helper()
	metrics := NewDispatcherMetrics(prometheus.NewRegistry())
	d, err := NewDispatcher(next, cfg, metrics, quietLogger())
	require.NoError(t, err)
	return d, metrics
}

func TestNewDispatcher_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  DispatcherConfig
	}{
		{"no workers", DispatcherConfig{Workers: 0, QueueSize: 1}},
		{"no queue", DispatcherConfig{Workers: 1, QueueSize: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDispatcher(&fakeSender{}, tt.cfg, nil, nil)
			errutil.AssertErrorCode(t, err, "MAIL_DISPATCHER_INVALID")
		})
	}
}

func TestDispatcher_DeliversQueuedMail(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &fakeSender{}
	d, metrics := newTestDispatcher(t, next, DispatcherConfig{Workers: 3, QueueSize: 16})

	for i := range 10 {
		require.NoError(t, d.SendOtp(context.Background(), fmt.Sprintf("u%d@kyonggi.ac.kr", i), "482913"))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, next.delivered(), 10)
	assert.InDelta(t, 10, testutil.ToFloat64(metrics.Sent), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.Failed), 0)
	assert.Zero(t, d.Pending())
}

func TestDispatcher_SurvivesCancelledRequestContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &fakeSender{}
	d, _ := newTestDispatcher(t, next, DispatcherConfig{Workers: 1, QueueSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.SendOtp(ctx, "u@kyonggi.ac.kr", "482913"))
	cancel()

	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, next.delivered(), 1)
}

func TestDispatcher_QueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &fakeSender{started: make(chan struct{}, 4), gate: make(chan struct{})}
	d, metrics := newTestDispatcher(t, next, DispatcherConfig{Workers: 1, QueueSize: 1})

	require.NoError(t, d.SendOtp(context.Background(), "a@kyonggi.ac.kr", "111111"))
	<-next.started // worker is busy with the first mail
	require.NoError(t, d.SendOtp(context.Background(), "b@kyonggi.ac.kr", "222222"))

	err := d.SendOtp(context.Background(), "c@kyonggi.ac.kr", "333333")
	errutil.AssertErrorCode(t, err, "MAIL_QUEUE_FULL")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.QueueFull), 0)
	assert.Equal(t, 1, d.Pending())

	close(next.gate)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, next.delivered(), 2)
}

func TestDispatcher_CountsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	next := &fakeSender{failures: 1, err: errors.New("relay down")}
	d, metrics := newTestDispatcher(t, next, DispatcherConfig{Workers: 1, QueueSize: 4})

	require.NoError(t, d.SendOtp(context.Background(), "a@kyonggi.ac.kr", "111111"))
	require.NoError(t, d.SendOtp(context.Background(), "b@kyonggi.ac.kr", "222222"))
	require.NoError(t, d.Close(context.Background()))

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Failed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Sent), 0)
}

func TestDispatcher_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	d, _ := newTestDispatcher(t, &fakeSender{}, DispatcherConfig{Workers: 2, QueueSize: 2})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()), "close is idempotent")

	err := d.SendOtp(context.Background(), "u@kyonggi.ac.kr", "482913")
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcher_CloseTimesOutOnStuckDelivery(t *testing.T) {
	next := &fakeSender{started: make(chan struct{}, 1), gate: make(chan struct{})}
	d, _ := newTestDispatcher(t, next, DispatcherConfig{Workers: 1, QueueSize: 1, SendTimeout: time.Minute})

	require.NoError(t, d.SendOtp(context.Background(), "u@kyonggi.ac.kr", "482913"))
	<-next.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	errutil.AssertErrorCode(t, err, "MAIL_DISPATCHER_DRAIN_TIMEOUT")

	close(next.gate)
	require.Eventually(t, func() bool { return len(next.delivered()) == 1 }, time.Second, time.Millisecond)
}
