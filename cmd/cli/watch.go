package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/websocket"
	"github.com/schollz/progressbar/v3"

	"github.com/yourusername/clipfetch/api/handlers"
	"github.com/yourusername/clipfetch/internal/domain"
)

// watchFetch follows the progress stream of a fetch until it ends
func watchFetch(c *apiClient, id string) error {
	wsURL, err := c.websocketURL("/api/v1/fetches/" + id + "/progress")
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &apiError{Status: resp.StatusCode, Message: "fetch not found"}
		}
		return fmt.Errorf("failed to open progress stream: %w", err)
	}
	defer conn.Close()

	var snapshot handlers.ProgressMessage
	if err := conn.ReadJSON(&snapshot); err != nil {
		return fmt.Errorf("failed to read progress stream: %w", err)
	}
	if snapshot.Fetch != nil && snapshot.Fetch.IsTerminal() {
		return reportOutcome(snapshot.Fetch)
	}
	if snapshot.Fetch != nil && snapshot.Fetch.Status == domain.StatusQueued {
		fmt.Fprintln(os.Stderr, "Waiting for a free slot...")
	}

	renderer := newProgressRenderer("fetching")
	for {
		var msg handlers.ProgressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return fmt.Errorf("progress stream interrupted: %w", err)
		}
		if msg.Event == nil {
			continue
		}
		renderer.handle(*msg.Event)
		if msg.Event.IsTerminal() {
			break
		}
	}

	var f domain.Fetch
	if err := c.do("GET", "/api/v1/fetches/"+id, nil, &f); err != nil {
		return err
	}
	return reportOutcome(&f)
}

func reportOutcome(f *domain.Fetch) error {
	switch f.Status {
	case domain.StatusCompleted:
		fmt.Printf("Completed: %s (%s)\n", f.DisplayName, formatBytes(f.SizeBytes))
		return nil
	case domain.StatusFailed:
		return fmt.Errorf("fetch failed [%s]: %s", f.ErrorKind, f.ErrorMessage)
	case domain.StatusCancelled:
		return fmt.Errorf("fetch cancelled")
	}
	fmt.Printf("Fetch is %s\n", f.Status)
	return nil
}

// saveArtifact downloads the artifact of a completed fetch into outDir
func saveArtifact(c *apiClient, id, outDir string) (string, int64, error) {
	resp, err := c.send(c.transfer, "GET", "/api/v1/fetches/"+id+"/file", nil)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	name := id
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outDir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	bar := progressbar.DefaultBytes(resp.ContentLength, "saving")
	n, err := io.Copy(io.MultiWriter(file, bar), resp.Body)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to save artifact: %w", err)
	}
	return path, n, nil
}
