package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ghalamif/TrailSync"
)

// A host application that owns its sensors pushes readings through a Feed and consumes
// synced batches from a channel store.
func main() {
	flow, err := trailsync.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, batches, closeBatches := trailsync.NewChannelStore("fanout", 32)
	defer closeBatches()
	go fanoutWorker("upload", batches)

	feed := trailsync.NewFeed()
	rec, err := flow.
		StreamIN(trailsync.StreamInFeed(feed), trailsync.StreamInConnectivity(true)).
		StreamOUT(trailsync.StreamOutStore(store))
	if err != nil {
		log.Fatalf("build recorder: %v", err)
	}

	ctx := context.Background()
	if _, err := rec.StartSession(ctx); err != nil {
		log.Fatalf("start session: %v", err)
	}

	for i := 0; i < 20; i++ {
		now := time.Now()
		_ = feed.PushAcceleration(ctx, trailsync.Acceleration{Timestamp: now, Z: 9.81})
		fix := trailsync.Fix{Timestamp: now, Latitude: 53.3498 + float64(i)*0.00001, Longitude: -6.2603}
		if err := feed.PushFix(ctx, fix); err != nil {
			log.Printf("push fix: %v", err)
		}
		time.Sleep(250 * time.Millisecond)
	}

	warn, err := rec.StopSession(ctx)
	if err != nil {
		log.Fatalf("stop session: %v", err)
	}
	if warn != nil {
		log.Printf("stopped with %s", warn)
	}
	_ = rec.Shutdown(ctx)
}

func fanoutWorker(name string, batches <-chan trailsync.Batch) {
	for batch := range batches {
		fmt.Printf("[%s] session %s: %d points at %s\n", name, batch.SessionID, len(batch.Points), time.Now().Format(time.RFC3339))
	}
}
