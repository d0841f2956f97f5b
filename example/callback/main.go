package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/TrailSync/pkg/trailsync"
)

func main() {
	flow, err := trailsync.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(sessionID string, batch []trailsync.DataPoint) error {
		for _, p := range batch {
			fmt.Printf("%s session=%s lat=%.6f lng=%.6f |a|=%.2f\n",
				time.UnixMilli(p.Timestamp).Format(time.RFC3339Nano),
				sessionID,
				p.Latitude,
				p.Longitude,
				p.AccelMagnitude,
			)
		}
		return nil
	}

	if err := flow.
		StreamIN(trailsync.StreamInConnectivity(true)).
		Run(ctx, trailsync.StreamOutCallback("stdout", callback)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("recorder error: %v", err)
	}
}
