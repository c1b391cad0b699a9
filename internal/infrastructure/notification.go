package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/clipfetch/internal/domain"
	"go.uber.org/zap"
)

// NotificationService sends desktop notifications about fetch progress
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification with the configured method
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var name string
	var args []string
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %s with title %s`, appleScriptQuote(message), appleScriptQuote(title))
		if n.config.Sound {
			script += ` sound name "Glass"`
		}
		name, args = "osascript", []string{"-e", script}
	case "notify-send":
		name, args = "notify-send", []string{title, message}
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err := n.run(name, args...); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyFetchStarted sends notification when a fetch starts
func (n *NotificationService) NotifyFetchStarted(fetch *domain.Fetch) {
	n.Send("Fetch Started", fmt.Sprintf("Processing: %s (%s)", truncateString(fetch.URL, 40), fetch.Quality))
}

// NotifyFetchCompleted sends notification when a fetch completes
func (n *NotificationService) NotifyFetchCompleted(fetch *domain.Fetch) {
	name := fetch.DisplayName
	if name == "" {
		name = truncateString(fetch.URL, 40)
	}
	n.Send("Fetch Completed", fmt.Sprintf("Ready: %s", name))
}

// NotifyFetchFailed sends notification when a fetch fails
func (n *NotificationService) NotifyFetchFailed(fetch *domain.Fetch, err error) {
	n.Send("Fetch Failed", fmt.Sprintf("%s: %s", domain.KindOf(err), truncateString(fetch.URL, 40)))
}

// NotifyQueueEmpty sends notification when the queue drains
func (n *NotificationService) NotifyQueueEmpty() {
	n.Send("Queue Empty", "All fetches completed")
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
