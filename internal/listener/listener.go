package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Refresher rebuilds an in-memory snapshot from the database.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Conn is the part of a dedicated connection the listener needs.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

const debounce = 200 * time.Millisecond

// ListenAndRefresh subscribes to channel and calls r.Refresh whenever another
// writer signals an override change. Wait errors back off with jitter.
func ListenAndRefresh(ctx context.Context, conn Conn, r Refresher, channel string, baseBackoff time.Duration) {
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("listen")
		return
	}
	log.Info().Str("channel", channel).Msg("listening for override changes")

	var lastRefresh time.Time
	for {
		ntf, err := conn.WaitForNotification(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("listener stopped")
			return
		}
		if err != nil {
			backoff := jitter(baseBackoff)
			log.Error().Err(err).Dur("retry_in", backoff).Msg("notify wait error")
			select {
			case <-ctx.Done():
				log.Info().Msg("listener stopped")
				return
			case <-time.After(backoff):
			}
			continue
		}
		if time.Since(lastRefresh) < debounce {
			continue // burst of statements from one transaction
		}
		lastRefresh = time.Now()
		log.Info().Str("channel", ntf.Channel).Str("table", ntf.Payload).Msg("override change; refreshing snapshot")
		if err := r.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("refresh snapshot error")
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
