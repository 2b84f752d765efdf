package sender

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/pgmflow/internal/metrics"
	"github.com/joshuafuller/pgmflow/internal/transport"
)

// ackTask services the engine's internal protocol channel (NAKs, SPM
// requests) for one started sender. cancel is the stop signal, done the
// join handle.
type ackTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startAckTask(sock transport.Socket, logger zerolog.Logger, m *metrics.Metrics, backoff time.Duration) *ackTask {
	ctx, cancel := context.WithCancel(context.Background())
	t := &ackTask{cancel: cancel, done: make(chan struct{})}
	go t.run(ctx, sock, logger, m, backoff)
	return t
}

// run drains until ctx is cancelled. DrainInternal returns within one drain
// poll, so the loop observes the stop signal promptly.
func (t *ackTask) run(ctx context.Context, sock transport.Socket, logger zerolog.Logger, m *metrics.Metrics, backoff time.Duration) {
	defer close(t.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := sock.DrainInternal(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		logger.Debug().Err(err).Msg("drain internal channel")
		m.DrainError()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stop signals the task and waits for it to exit. A zero timeout waits
// without limit. It reports whether the task exited.
func (t *ackTask) stop(timeout time.Duration) bool {
	t.cancel()
	if timeout <= 0 {
		<-t.done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}
