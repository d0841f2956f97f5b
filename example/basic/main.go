package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/TrailSync"
)

// Records a simulated walk around Phoenix Park and syncs it to the store in the config.
func main() {
	flow, err := trailsync.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	walk := trailsync.WalkConfig{StartLat: 53.3559, StartLng: -6.3298}
	err = flow.
		StreamIN(trailsync.StreamInSimulated(walk, trailsync.GaitConfig{})).
		Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("recorder exited: %v", err)
	}
}
