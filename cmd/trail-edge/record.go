package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghalamif/TrailSync/pkg/trailsync"
)

func newRecordCmd(opts *rootOptions) *cobra.Command {
	var statusEvery time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one session until interrupted, then flush and close it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			rec, err := trailsync.NewRecorder(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return record(ctx, rec, cmd.OutOrStdout(), statusEvery)
		},
	}
	cmd.Flags().DurationVar(&statusEvery, "status-interval", 10*time.Second, "Print recorder status this often (0 disables)")
	return cmd
}

func record(ctx context.Context, rec *trailsync.Recorder, out io.Writer, statusEvery time.Duration) error {
	if err := rec.Start(ctx); err != nil {
		return err
	}
	session, err := rec.StartSession(ctx)
	if err != nil {
		_ = rec.Shutdown(context.Background())
		return err
	}
	fmt.Fprintf(out, "recording session %s (local=%t), Ctrl+C to stop\n", session.SessionID, session.Local)

	var tick <-chan time.Time
	if statusEvery > 0 {
		ticker := time.NewTicker(statusEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-tick:
			printStatus(out, rec.Status())
		}
	}

	// The final flush may need several attempts; give it its own budget.
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	warn, err := rec.StopSession(stopCtx)
	if err != nil {
		_ = rec.Shutdown(stopCtx)
		return err
	}
	if warn != nil {
		fmt.Fprintf(out, "session %s stopped: %s\n", warn.SessionID, warn)
	} else {
		fmt.Fprintf(out, "session %s stopped, all points synced\n", session.SessionID)
	}
	return rec.Shutdown(stopCtx)
}

func printStatus(out io.Writer, st trailsync.Status) {
	line := fmt.Sprintf("[%s] %s duration=%s collected=%d synced=%d buffered=%d online=%t sync=%s",
		time.Now().Format(time.RFC3339), st.State, st.Duration.Round(time.Second),
		st.PointsCollected, st.PointsSynced, st.Buffered, st.Online, st.SyncState)
	if st.Activity != "" {
		line += fmt.Sprintf(" activity=%s(%.2f)", st.Activity, st.ActivityConfidence)
	}
	if st.LocationError != "" {
		line += " location_error=" + st.LocationError
	}
	if !st.MotionAvailable {
		line += " motion=unavailable"
	}
	fmt.Fprintln(out, line)
}
