package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yourusername/clipfetch/internal/daemon"
)

const (
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

// ensureServerRunning starts clipfetch-server when nothing answers at serverURL
func ensureServerRunning() error {
	ctx := context.Background()
	if daemon.Healthy(ctx, serverURL) {
		return nil
	}

	path, err := daemon.FindServer()
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Server not running, starting...")
	// The server would daemonize itself again without -foreground
	if _, err := daemon.Spawn(path, "-foreground"); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, serverStartTimeout)
	defer cancel()
	if err := daemon.WaitHealthy(ctx, serverURL, serverPollInterval); err != nil {
		return fmt.Errorf("server did not start within %v", serverStartTimeout)
	}

	fmt.Fprintln(os.Stderr, "Server started")
	return nil
}
