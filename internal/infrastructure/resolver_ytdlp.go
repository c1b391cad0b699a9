package infrastructure

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/clipfetch/internal/domain"
	"github.com/yourusername/clipfetch/pkg/logger"
	"go.uber.org/zap"
)

const (
	progressTemplate = "download:[progress] %(progress.{status,downloaded_bytes,total_bytes,total_bytes_estimate,_speed_str,_eta_str,_percent_str,filename})j"
	resultTemplate   = "after_move:[result] %(.{id,title,ext,filepath})j"

	// maxLineSize bounds one line of resolver output
	maxLineSize = 1024 * 1024
)

// YTDLPResolver implements domain.Resolver by running the yt-dlp binary
type YTDLPResolver struct {
	config      *domain.ResolverConfig
	logsDir     string
	eventLogger *logger.MultiLogger // For structured events only (LogQueueEvent, LogAppError)
}

// NewYTDLPResolver creates a new yt-dlp backed resolver
func NewYTDLPResolver(config *domain.ResolverConfig, logsDir string, eventLogger *logger.MultiLogger) *YTDLPResolver {
	return &YTDLPResolver{
		config:      config,
		logsDir:     logsDir,
		eventLogger: eventLogger,
	}
}

func (r *YTDLPResolver) binary() string {
	if r.config.Binary == "" {
		return "yt-dlp"
	}
	return r.config.Binary
}

// commonArgs are shared by downloads and probes
func (r *YTDLPResolver) commonArgs() []string {
	args := []string{"--no-playlist", "--no-colors"}
	if r.config.ForceIPv4 {
		args = append(args, "--force-ipv4")
	}
	if r.config.GeoBypassCountry != "" {
		args = append(args, "--geo-bypass-country", r.config.GeoBypassCountry)
	}
	if r.config.CookieFile != "" && fileExists(r.config.CookieFile) {
		args = append(args, "--cookies", r.config.CookieFile)
	}
	return append(args, r.config.ExtraArgs...)
}

// buildDownloadArgs assembles the yt-dlp arguments for one transfer.
// exec.Command passes args directly to the process, no shell quoting needed.
func (r *YTDLPResolver) buildDownloadArgs(req domain.ResolveRequest) []string {
	template := req.OutputTemplate
	if template == "" {
		template = "%(title)s.%(ext)s"
	}

	args := []string{
		"--newline",
		"--progress",
		"--force-overwrites",
		"--restrict-filenames",
		"--progress-template", progressTemplate,
		"--print", resultTemplate,
		"--no-simulate",
		"-f", req.Format,
		"-o", template,
		"-P", req.OutputDir,
	}
	args = append(args, r.commonArgs()...)
	return append(args, req.URL)
}

type outputLine struct {
	text   string
	stderr bool
}

// Download runs yt-dlp, forwarding progress to hook from the calling goroutine
func (r *YTDLPResolver) Download(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
	if hook == nil {
		hook = func(domain.ResolverProgress) {}
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	fetchLog, err := OpenFetchLog(r.logsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer fetchLog.Close()

	args := r.buildDownloadArgs(req)
	fetchLog.Header(req.FetchID, ShellEscapeCommand(r.binary(), args...))

	// Output goes through io.Pipe so WaitDelay can cut off children that
	// outlive a cancelled yt-dlp while still holding its stdout
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		fetchLog.Footer(false, fmt.Sprintf("failed to start yt-dlp: %v", err))
		return nil, domain.NewFetchError(domain.KindResolutionFailed, "failed to start resolver", err)
	}

	waitc := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		waitc <- err
	}()

	lines := make(chan outputLine, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	go scanLines(stdoutR, false, lines, &readers)
	go scanLines(stderrR, true, lines, &readers)
	go func() {
		readers.Wait()
		close(lines)
	}()

	var (
		result          *domain.ResolvedMedia
		lastFilename    string
		errorLines      []string
		lastStderr      string
		transferStarted bool
	)

	for line := range lines {
		text := stripANSI(line.text)
		fetchLog.Line(text)

		// Keep draining so the process can exit, but stop reporting once cancelled
		if ctx.Err() != nil {
			continue
		}

		if progress, ok := parseProgressLine(text); ok {
			if progress.Status == domain.ResolverDownloading {
				transferStarted = true
			}
			if progress.Filename != "" {
				lastFilename = progress.Filename
			}
			hook(progress)
			continue
		}
		if media, ok := parseResultLine(text); ok {
			result = media
			continue
		}
		if msg, ok := strings.CutPrefix(text, errorPrefix); ok {
			errorLines = append(errorLines, msg)
		}
		if line.stderr && strings.TrimSpace(text) != "" {
			lastStderr = text
		}
	}

	waitErr := <-waitc

	if ctx.Err() != nil {
		fetchLog.Footer(false, "cancelled")
		return nil, domain.NewFetchError(domain.KindCancelled, "fetch cancelled", ctx.Err())
	}

	if waitErr != nil {
		diagnostic := diagnosticFrom(errorLines, lastStderr)
		if diagnostic == "" {
			diagnostic = waitErr.Error()
		}
		kind := classifyFailure(diagnostic, transferStarted)
		fetchLog.Footer(false, diagnostic)
		if r.eventLogger != nil {
			r.eventLogger.LogAppError("yt-dlp failed",
				zap.String("fetch_id", req.FetchID),
				zap.String("kind", string(kind)),
				zap.String("diagnostic", diagnostic))
		}
		return nil, domain.NewFetchError(kind, diagnostic, waitErr)
	}

	if result == nil {
		// Older yt-dlp builds skip after_move prints; fall back to the last transfer target
		result = &domain.ResolvedMedia{Path: lastFilename}
	}

	fetchLog.Footer(true, fmt.Sprintf("Resolved: %s", result.Path))
	return result, nil
}

func scanLines(r io.Reader, stderr bool, out chan<- outputLine, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		out <- outputLine{text: scanner.Text(), stderr: stderr}
	}
	// Drain anything past an over-long line so the process never blocks on a full pipe
	io.Copy(io.Discard, r)
}

// Probe lists the formats available for a URL without downloading
func (r *YTDLPResolver) Probe(ctx context.Context, url string) (*domain.MediaInfo, error) {
	if r.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ProbeTimeout)
		defer cancel()
	}

	args := append([]string{"-J", "--no-warnings"}, r.commonArgs()...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, domain.NewFetchError(domain.KindCancelled, "probe cancelled", ctx.Err())
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewFetchError(domain.KindNetworkFailed, "probe timed out", ctx.Err())
		}

		var errorLines []string
		lastStderr := ""
		for _, line := range strings.Split(stripANSI(stderr.String()), "\n") {
			if msg, ok := strings.CutPrefix(line, errorPrefix); ok {
				errorLines = append(errorLines, msg)
			}
			if strings.TrimSpace(line) != "" {
				lastStderr = line
			}
		}
		diagnostic := diagnosticFrom(errorLines, lastStderr)
		if diagnostic == "" {
			diagnostic = err.Error()
		}
		return nil, domain.NewFetchError(classifyFailure(diagnostic, false), diagnostic, err)
	}

	info, err := parseProbe(out)
	if err != nil {
		return nil, domain.NewFetchError(domain.KindResolutionFailed, "unreadable probe output", err)
	}
	return info, nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
