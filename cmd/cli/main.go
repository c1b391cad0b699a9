package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/clipfetch/internal/app"
	"github.com/yourusername/clipfetch/internal/domain"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:           "clipfetch",
		Short:         "clipfetch CLI - fetch online videos through yt-dlp",
		Long:          `A command-line interface for queueing, watching and saving video fetches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(fetchCmd)
}

// client checks the server is running, starting it unless --no-auto-start
func client() *apiClient {
	if !noAutoStart {
		if err := ensureServerRunning(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return newAPIClient(serverURL)
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Queue a fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("quality")
		delivery, _ := cmd.Flags().GetString("delivery")
		watch, _ := cmd.Flags().GetBool("watch")

		c := client()
		payload := map[string]string{"url": args[0]}
		if quality != "" {
			payload["quality"] = quality
		}
		if delivery != "" {
			payload["delivery"] = delivery
		}

		var fetch domain.Fetch
		if err := c.do("POST", "/api/v1/fetches", payload, &fetch); err != nil {
			return err
		}

		fmt.Printf("Fetch queued\n")
		fmt.Printf("ID:      %s\n", fetch.ID)
		fmt.Printf("Status:  %s\n", fetch.Status)
		fmt.Printf("Quality: %s\n", fetch.Quality)

		if watch {
			return watchFetch(c, fetch.ID)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List fetches",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/fetches"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var fetches []domain.Fetch
		if err := client().do("GET", path, nil, &fetches); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tQUALITY\tSTATUS\tPROGRESS\tCREATED")
		for _, f := range fetches {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
				truncate(f.ID, 8),
				truncate(f.URL, 40),
				f.Quality,
				f.Status,
				f.Progress,
				f.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fetch statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats domain.FetchStats
		if err := client().do("GET", "/api/v1/fetches/stats", nil, &stats); err != nil {
			return err
		}

		fmt.Println("Fetch Statistics:")
		fmt.Printf("  Total:      %d\n", stats.Total)
		fmt.Printf("  Queued:     %d\n", stats.Queued)
		fmt.Printf("  Processing: %d\n", stats.Processing)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
		fmt.Printf("  Cancelled:  %d\n", stats.Cancelled)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show fetch details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var f domain.Fetch
		if err := client().do("GET", "/api/v1/fetches/"+args[0], nil, &f); err != nil {
			return err
		}
		printFetch(&f)
		return nil
	},
}

func printFetch(f *domain.Fetch) {
	fmt.Printf("Fetch Details:\n")
	fmt.Printf("  ID:       %s\n", f.ID)
	fmt.Printf("  URL:      %s\n", f.URL)
	fmt.Printf("  Quality:  %s\n", f.Quality)
	fmt.Printf("  Delivery: %s\n", f.Delivery)
	fmt.Printf("  Status:   %s\n", f.Status)
	fmt.Printf("  Progress: %.1f%%\n", f.Progress)
	fmt.Printf("  Created:  %s\n", f.CreatedAt.Format("2006-01-02 15:04:05"))
	if f.Title != "" {
		fmt.Printf("  Title:    %s\n", f.Title)
	}
	if f.DisplayName != "" {
		fmt.Printf("  File:     %s (%s)\n", f.DisplayName, formatBytes(f.SizeBytes))
	}
	if f.ErrorMessage != "" {
		fmt.Printf("  Error:    [%s] %s\n", f.ErrorKind, f.ErrorMessage)
	}
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().do("POST", "/api/v1/fetches/"+args[0]+"/cancel", nil, nil); err != nil {
			return err
		}
		fmt.Println("Fetch cancelled")
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed or cancelled fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var f domain.Fetch
		if err := client().do("POST", "/api/v1/fetches/"+args[0]+"/retry", nil, &f); err != nil {
			return err
		}
		fmt.Printf("Fetch queued for retry (attempt %d)\n", f.RetryCount+1)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a fetch and its artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().do("DELETE", "/api/v1/fetches/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("Fetch deleted")
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Follow the progress of a fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchFetch(client(), args[0])
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [id]",
	Short: "Download the artifact of a completed fetch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("output")
		path, size, err := saveArtifact(client(), args[0], outDir)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %s (%s)\n", path, formatBytes(size))
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "List available formats and the one that would be fetched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("quality")

		query := url.Values{"url": []string{args[0]}}
		if quality != "" {
			query.Set("quality", quality)
		}

		var result app.ProbeResult
		if err := client().do("GET", "/api/v1/probe?"+query.Encode(), nil, &result); err != nil {
			return err
		}
		printProbe(&result)
		return nil
	},
}

func printProbe(result *app.ProbeResult) {
	fmt.Printf("Title:      %s\n", result.Media.Title)
	fmt.Printf("Quality:    %s\n", result.Quality)
	fmt.Printf("Expression: %s\n", result.Expression)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nFORMAT\tEXT\tHEIGHT\tVIDEO\tAUDIO\tSIZE")
	for _, f := range result.Media.Formats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%t\t%s\n", f.ID, f.Ext, f.Height, f.HasVideo, f.HasAudio, formatBytes(f.Size))
	}
	_ = w.Flush()

	if !result.Available || result.Selection == nil {
		fmt.Println("\nNo format satisfies the requested quality")
		return
	}
	ids := make([]string, 0, len(result.Selection.Formats))
	for _, f := range result.Selection.Formats {
		ids = append(ids, fmt.Sprintf("%s (%s, %dp)", f.ID, f.Ext, f.Height))
	}
	fmt.Printf("\nSelected:   %s\n", strings.Join(ids, " + "))
	if result.Selection.CapExceeded {
		fmt.Println("Note: no stream within the quality cap, a higher resolution will be fetched")
	}
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show today's log entries (fetch, queue, error)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		date, _ := cmd.Flags().GetString("date")
		limit, _ := cmd.Flags().GetInt("limit")

		path := "/api/v1/logs/" + url.PathEscape(args[0])
		query := url.Values{}
		if search != "" {
			path += "/search"
			query.Set("q", search)
		}
		if date != "" {
			query.Set("date", date)
		}
		query.Set("limit", fmt.Sprint(limit))

		var result struct {
			Entries []struct {
				Timestamp string                 `json:"timestamp"`
				Level     string                 `json:"level"`
				Message   string                 `json:"message"`
				Fields    map[string]interface{} `json:"fields"`
			} `json:"entries"`
		}
		if err := client().do("GET", path+"?"+query.Encode(), nil, &result); err != nil {
			return err
		}

		for _, e := range result.Entries {
			if e.Timestamp == "" {
				fmt.Println(e.Message)
				continue
			}
			fmt.Printf("%s %-5s %s", e.Timestamp, e.Level, e.Message)
			for k, v := range e.Fields {
				fmt.Printf(" %s=%v", k, v)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("quality", "q", "", "Quality cap, e.g. 720p or best (server default when empty)")
	addCmd.Flags().StringP("delivery", "d", "", "Delivery mode: disk or buffer (server default when empty)")
	addCmd.Flags().BoolP("watch", "w", false, "Follow progress after queueing")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	saveCmd.Flags().StringP("output", "o", ".", "Output directory")
	probeCmd.Flags().StringP("quality", "q", "", "Quality cap to evaluate")
	logsCmd.Flags().String("search", "", "Only entries matching text")
	logsCmd.Flags().String("date", "", "Day to read (YYYY-MM-DD), today when empty")
	logsCmd.Flags().Int("limit", 100, "Maximum entries")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
