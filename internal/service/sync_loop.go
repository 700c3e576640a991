package service

import (
	"context"
	"log"
	"time"
)

// RunSyncLoop drains the queue once at start and then every interval while online.
// It blocks until ctx is done.
func (s *ReceiptServiceImpl) RunSyncLoop(ctx context.Context, interval time.Duration) {
	s.drainIfOnline(ctx)
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync loop stopped")
			return
		case <-ticker.C:
			s.drainIfOnline(ctx)
		}
	}
}
