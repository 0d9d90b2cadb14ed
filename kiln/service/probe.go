package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/kilnci/kiln/kiln/schema"
)

// waitReady polls the probe until it passes or the context expires.
// The last probe error is folded into the context error so timeouts
// explain what the probe was still waiting for.
func waitReady(ctx context.Context, probe schema.Probe, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		err := check(ctx, probe)
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w (last probe error: %v)", ctx.Err(), lastErr)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// check runs a single probe attempt.
func check(ctx context.Context, probe schema.Probe) error {
	switch {
	case probe.TCP != "":
		return checkTCP(ctx, probe.TCP)
	case probe.HTTP != "":
		return checkHTTP(ctx, probe.HTTP)
	case probe.Cmd != "":
		return checkCmd(ctx, probe.Cmd)
	default:
		return fmt.Errorf("no probe configured")
	}
}

func checkTCP(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe URL returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func checkCmd(ctx context.Context, command string) error {
	return exec.CommandContext(ctx, "/bin/sh", "-c", command).Run()
}
