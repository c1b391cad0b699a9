package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/clipfetch/internal/app"
	"github.com/yourusername/clipfetch/internal/domain"
	"github.com/yourusername/clipfetch/internal/infrastructure"
	"github.com/yourusername/clipfetch/pkg/logger"
)

// fetchCmd runs one fetch in-process without a server
var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch a video directly, without the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("quality")
		outDir, _ := cmd.Flags().GetString("output")
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")

		config, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if quality == "" {
			quality = config.Fetch.DefaultQuality
		}
		q, err := domain.ParseQuality(quality)
		if err != nil {
			return err
		}

		level := "warn"
		if verbose {
			level = "debug"
		}
		log, err := logger.New(logger.Config{Level: level, Format: "console", OutputPath: "stderr"})
		if err != nil {
			log = logger.NewDefault()
		}
		defer log.Sync()

		// Private scratch so a running server's slots are never cleared
		scratch, err := os.MkdirTemp("", "clipfetch-")
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(scratch)

		resolver := infrastructure.NewYTDLPResolver(&config.Resolver, config.Fetch.LogsDir(), nil)
		orchestrator := app.NewOrchestrator(resolver, scratch, app.OrchestratorOptions{
			Container:    config.Fetch.Container,
			MergeStreams: config.Fetch.MergeStreams,
		}, log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		renderer := newProgressRenderer("fetching")
		result, err := orchestrator.Fetch(ctx, domain.FetchRequest{
			SourceURL: args[0],
			Quality:   q,
			Delivery:  domain.DeliveryDisk,
		}, renderer.handle)
		if err != nil {
			log.Debug("Fetch failed", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
			return err
		}

		dest, err := moveArtifact(result.Path, outDir, result.DisplayName)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %s (%s)\n", dest, formatBytes(result.Size))
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringP("quality", "q", "", "Quality cap, e.g. 720p or best")
	fetchCmd.Flags().StringP("output", "o", ".", "Output directory")
	fetchCmd.Flags().String("config", "", "Path to config file")
	fetchCmd.Flags().BoolP("verbose", "v", false, "Log resolver activity")
}

// moveArtifact moves src to dir/name, copying when a rename crosses devices
func moveArtifact(src, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	dest := filepath.Join(dir, name)

	if err := os.Rename(src, dest); err == nil {
		return dest, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dest, nil
}
