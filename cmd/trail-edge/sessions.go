package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/ghalamif/TrailSync/pkg/trailsync"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the most recent sessions held by the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := historyRecorder(opts)
			if err != nil {
				return err
			}
			defer rec.Shutdown(context.Background())

			sessions, err := rec.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	return cmd
}

func newSessionCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "session <id>",
		Short: "Show the stored points of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := historyRecorder(opts)
			if err != nil {
				return err
			}
			defer rec.Shutdown(context.Background())

			points, err := rec.SessionPoints(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(points)
			}
			printSessionSummary(cmd.OutOrStdout(), args[0], summarize(points))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print every point as JSON")
	return cmd
}

// historyRecorder builds a recorder only to reach its store; no sensor is started.
func historyRecorder(opts *rootOptions) (*trailsync.Recorder, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	return trailsync.NewRecorder(cfg, trailsync.WithConnectivity(true))
}

func printSessions(out io.Writer, sessions []trailsync.SessionSummary) error {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tSTATUS\tPOINTS")
	for _, s := range sessions {
		duration := "-"
		if !s.EndTime.IsZero() {
			duration = s.EndTime.Sub(s.StartTime).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.StartTime.Local().Format(time.DateTime), duration, s.Status, s.DataPointCount)
	}
	return tw.Flush()
}

type pointSummary struct {
	Count         int
	First, Last   time.Time
	MinLat        float64
	MaxLat        float64
	MinLng        float64
	MaxLng        float64
	MeanMagnitude float64
	StdMagnitude  float64
}

func summarize(points []trailsync.DataPoint) pointSummary {
	s := pointSummary{Count: len(points)}
	if len(points) == 0 {
		return s
	}
	s.First = time.UnixMilli(points[0].Timestamp)
	s.Last = time.UnixMilli(points[len(points)-1].Timestamp)
	s.MinLat, s.MaxLat = math.Inf(1), math.Inf(-1)
	s.MinLng, s.MaxLng = math.Inf(1), math.Inf(-1)

	for _, p := range points {
		s.MinLat = math.Min(s.MinLat, p.Latitude)
		s.MaxLat = math.Max(s.MaxLat, p.Latitude)
		s.MinLng = math.Min(s.MinLng, p.Longitude)
		s.MaxLng = math.Max(s.MaxLng, p.Longitude)
	}
	magnitudes := lo.Map(points, func(p trailsync.DataPoint, _ int) float64 { return p.AccelMagnitude })
	s.MeanMagnitude, s.StdMagnitude = stat.MeanStdDev(magnitudes, nil)
	if len(points) == 1 {
		s.StdMagnitude = 0
	}
	return s
}

func printSessionSummary(out io.Writer, id string, s pointSummary) {
	fmt.Fprintf(out, "session %s: %d points\n", id, s.Count)
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(out, "  span       %s .. %s (%s)\n",
		s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339), s.Last.Sub(s.First).Round(time.Second))
	fmt.Fprintf(out, "  bounds     lat %.6f..%.6f lng %.6f..%.6f\n", s.MinLat, s.MaxLat, s.MinLng, s.MaxLng)
	fmt.Fprintf(out, "  accel |a|  mean %.3f m/s² sd %.3f\n", s.MeanMagnitude, s.StdMagnitude)
}
