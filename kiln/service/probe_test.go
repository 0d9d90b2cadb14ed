//go:build unix

package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kilnci/kiln/kiln/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	assert.NoError(t, check(context.Background(), schema.Probe{TCP: ln.Addr().String()}))
}

func TestCheckTCP_Refused(t *testing.T) {
	// Grab a free port and close it again so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	assert.Error(t, check(context.Background(), schema.Probe{TCP: addr}))
}

func TestCheckCmd(t *testing.T) {
	assert.NoError(t, check(context.Background(), schema.Probe{Cmd: "true"}))
	assert.Error(t, check(context.Background(), schema.Probe{Cmd: "false"}))
}

func TestWaitReady_EventualSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	// Start listening shortly after the first probe attempt fails.
	go func() {
		time.Sleep(50 * time.Millisecond)
		late, lerr := net.Listen("tcp", addr)
		if lerr == nil {
			defer late.Close()
			time.Sleep(time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = waitReady(ctx, schema.Probe{TCP: addr}, 20*time.Millisecond)
	assert.NoError(t, err)
}

func TestWaitReady_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := waitReady(ctx, schema.Probe{Cmd: "false"}, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last probe error")
}

func TestContainer_StartAndStop(t *testing.T) {
	// /bin/echo stands in for the container runtime: start prints its
	// arguments (which become the handle ID), stop always succeeds.
	sup := NewContainer("/bin/echo", "kiln-test", nil)

	ref := schema.ServiceRef{
		Name:  "mysql",
		Image: "mysql:8",
		Probe: schema.Probe{Cmd: "true"},
	}

	handle, err := sup.Start(context.Background(), ref)
	require.NoError(t, err)
	assert.Contains(t, handle.ID, "kiln-test-mysql")
	assert.Contains(t, handle.ID, "mysql:8")

	require.NoError(t, sup.WaitReady(context.Background(), handle))

	sup.Stop(handle) // best-effort; must not panic or error
}

func TestContainer_StartFailure(t *testing.T) {
	sup := NewContainer("/bin/false", "kiln-test", nil)

	_, err := sup.Start(context.Background(), schema.ServiceRef{
		Name:  "mysql",
		Probe: schema.Probe{Cmd: "true"},
	})
	require.Error(t, err)

	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "mysql", startErr.Name)
}

func TestContainer_WaitReadyTimeout(t *testing.T) {
	sup := NewContainer("/bin/echo", "kiln-test", nil)

	handle := &Handle{
		Service: schema.ServiceRef{
			Name: "mysql",
			Probe: schema.Probe{
				Cmd:      "false",
				Timeout:  schema.Duration(100 * time.Millisecond),
				Interval: schema.Duration(10 * time.Millisecond),
			},
		},
		ID: "id",
	}

	err := sup.WaitReady(context.Background(), handle)
	require.Error(t, err)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "mysql", timeoutErr.Name)
}
