// Package daemon starts clipfetch-server detached from the calling terminal
// and checks whether an instance is answering.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ServerBinary is the file name of the server executable
const ServerBinary = "clipfetch-server"

// Spawn starts path with args in the background and forgets about it.
// Stdio is attached to the null device.
func Spawn(path string, args ...string) (int, error) {
	cmd := exec.Command(path, args...)
	cmd.Env = os.Environ()
	if cwd, err := os.Getwd(); err == nil {
		cmd.Dir = cwd
	}
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	return pid, cmd.Process.Release()
}

// FindServer looks for the server binary next to the running executable,
// then on PATH, then in the usual install locations
func FindServer() (string, error) {
	var candidates []string
	if self, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(self), ServerBinary))
	}
	if onPath, err := exec.LookPath(ServerBinary); err == nil {
		candidates = append(candidates, onPath)
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/bin", ServerBinary),
		filepath.Join("/usr/bin", ServerBinary),
	)
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "go", "bin", ServerBinary),
			filepath.Join(home, ".local", "bin", ServerBinary),
		)
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s binary not found", ServerBinary)
}

// Healthy reports whether baseURL answers /health with 200
func Healthy(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WaitHealthy polls baseURL every interval until it is healthy or ctx ends
func WaitHealthy(ctx context.Context, baseURL string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if Healthy(ctx, baseURL) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server at %s not healthy: %w", baseURL, ctx.Err())
		case <-ticker.C:
		}
	}
}
