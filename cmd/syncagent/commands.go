package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/photosync/syncagent/internal/middleware"
	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/services"
)

var jsonOutput bool

var scanCmd = &cobra.Command{
	Use:     "scan",
	GroupID: "run",
	Short:   "Run a full scan in the foreground",
	Long: `Run a full scan: fill every unsynced gap between the stored intervals,
then sync from the last interval to the newest photo.

Progress is checkpointed after every batch. Interrupting with Ctrl-C stops
the scan; the next run resumes from the last checkpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			stopPrinting := printProgress(a.scan.Progress())
			result := a.scan.Run(ctx)
			stopPrinting()

			if jsonOutput {
				return printJSON(struct {
					RunID     string                `json:"runId"`
					Outcome   string                `json:"outcome"`
					Error     string                `json:"error,omitempty"`
					Intervals []models.TimeInterval `json:"intervals"`
				}{result.RunID, string(result.Outcome), errString(result.Err), result.Intervals})
			}

			fmt.Printf("Full scan %s in %s\n", result.Outcome, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
			printIntervals(result.Intervals)
			if result.Outcome == services.ScanFailed {
				return result.Err
			}
			return nil
		})
	},
}

var tickCmd = &cobra.Command{
	Use:     "tick",
	GroupID: "run",
	Short:   "Run one periodic sync pass",
	Long: `Upload every photo taken since the sync anchor, once.

Does nothing when sync from now is not enabled. Exits non-zero when the
interval store is busy or the anchor interval has gone missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			stopPrinting := printProgress(a.periodic.Progress())
			result := a.periodic.RunTick(ctx)
			stopPrinting()

			if jsonOutput {
				if err := printJSON(struct {
					Outcome  string `json:"outcome"`
					Uploaded int    `json:"uploaded"`
					Error    string `json:"error,omitempty"`
				}{string(result.Outcome), result.Uploaded, errString(result.Err)}); err != nil {
					return err
				}
			} else {
				fmt.Printf("Tick %s, %d photo(s) uploaded\n", result.Outcome, result.Uploaded)
			}

			switch result.Outcome {
			case services.TickRetry, services.TickFatalMissingAnchor:
				return result.Err
			}
			return nil
		})
	},
}

var anchorCmd = &cobra.Command{
	Use:     "anchor",
	GroupID: "state",
	Short:   "Enable or disable sync from now",
}

var anchorEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Start syncing photos taken from now on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			anchor, err := a.periodic.EnableSyncFromNow(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(models.AnchorResponse{AnchorPoint: &anchor, Enabled: true})
			}
			fmt.Printf("Sync from now anchored at %s\n", formatSeconds(anchor))
			return nil
		})
	},
}

var anchorDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop syncing new photos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.periodic.DisableSyncFromNow(ctx); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(models.AnchorResponse{Enabled: false})
			}
			fmt.Println("Sync from now disabled")
			return nil
		})
	},
}

var intervalsCmd = &cobra.Command{
	Use:     "intervals",
	GroupID: "state",
	Short:   "Show the synced intervals and the sync anchor",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			intervals, err := a.store.Load(ctx)
			if err != nil {
				return err
			}
			anchor, ok, err := a.store.LoadAnchor(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				resp := models.IntervalsResponse{Intervals: intervals}
				if ok {
					resp.AnchorPoint = &anchor
				}
				return printJSON(resp)
			}

			printIntervals(intervals)
			if ok {
				fmt.Printf("Sync anchor: %s\n", formatSeconds(anchor))
			} else {
				fmt.Println("Sync anchor: not set")
			}
			return nil
		})
	},
}

var resetForce bool

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "state",
	Short:   "Forget all synced intervals and the sync anchor",
	Long: `Delete every stored interval and the sync anchor. The next full scan
uploads the whole gallery again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetForce {
			return fmt.Errorf("refusing to reset without --force")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.lock.Acquire(ctx); err != nil {
				return err
			}
			defer a.lock.Release()

			if err := a.store.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Println("Sync state cleared")
			return nil
		})
	},
}

var hashKeyCmd = &cobra.Command{
	Use:     "hash-key [key]",
	GroupID: "state",
	Short:   "Print the bcrypt hash of an API key for security.apiKeyHash",
	Long: `Print the bcrypt hash of an API key. Put the output in security.apiKeyHash
(or API_KEY_HASH) so the plain key never has to sit in the config file.
The key is read from stdin when not given as an argument.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 4096))
			if err != nil {
				return err
			}
			key = strings.TrimSpace(string(data))
		}
		if len(key) < 16 {
			return fmt.Errorf("API key must be at least 16 characters")
		}

		hash, err := middleware.HashAPIKey(key)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{scanCmd, tickCmd, anchorEnableCmd, anchorDisableCmd, intervalsCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")
	}
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "confirm the reset")

	anchorCmd.AddCommand(anchorEnableCmd, anchorDisableCmd)
}

// withApp builds the engine, runs fn with a context cancelled on SIGINT or
// SIGTERM, and tears everything down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

// printProgress echoes progress text to stderr until the returned func is
// called.
func printProgress(progress *services.ProgressBroadcaster) func() {
	updates, cancel := progress.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		last := ""
		for p := range updates {
			if p.Text != last {
				fmt.Fprintln(os.Stderr, p.Text)
				last = p.Text
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func printIntervals(intervals []models.TimeInterval) {
	if len(intervals) == 0 {
		fmt.Println("No synced intervals")
		return
	}
	fmt.Printf("%d synced interval(s):\n", len(intervals))
	for _, iv := range intervals {
		fmt.Printf("  %s .. %s\n", formatSeconds(iv.Start), formatSeconds(iv.End))
	}
}

func formatSeconds(sec int64) string {
	if sec == models.BeginningOfTime.Start {
		return "beginning"
	}
	return time.Unix(sec, 0).Format(time.RFC3339)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
