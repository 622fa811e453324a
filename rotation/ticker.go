package rotation

import (
	"context"
	"io"
	"log"
	"time"
)

// RunTicker drives periodic rotation: rotate, then sleep for the current
// Duration, forever. It re-reads Duration every cycle rather than caching
// it in a time.Ticker, so a configuration change between rotations is
// honored on the next sleep. A rotation error is logged and never stops
// the loop. RunTicker returns when ctx is canceled.
func RunTicker(ctx context.Context, r *RotatingKeys, logger *log.Logger) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	for {
		if err := r.Rotate(ctx, time.Now().Unix()); err != nil {
			logger.Printf("rotation: rotate failed: %v", err)
		}

		r.mu.RLock()
		d := time.Duration(r.Duration) * time.Second
		r.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
}
