package conn

import (
	"context"
	"time"

	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/metrics"
	"github.com/dkeye/meetlink/internal/wire"
)

func (m *Manager) writePump(ctx context.Context, stream core.Stream, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			m.log.Debug().Msg("writePump ctx done")
			return
		case data, ok := <-out:
			if !ok {
				m.log.Debug().Msg("writePump drained")
				return
			}
			if err := stream.WriteFrame(data); err != nil {
				m.log.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

// readPump decodes inbound frames and forwards them on the event stream until the
// stream fails. Malformed frames are dropped, pongs are consumed here.
func (m *Manager) readPump(ctx context.Context, stream core.Stream, pongs chan<- struct{}) error {
	for {
		frame, err := stream.ReadFrame()
		if err != nil {
			return err
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			metrics.ProtocolErrorsTotal.WithLabelValues("decode").Inc()
			m.log.Warn().Err(err).Int("len", len(frame)).Msg("malformed frame dropped")
			continue
		}
		metrics.MessagesTotal.WithLabelValues(string(msg.Type), "in").Inc()

		if msg.Type == wire.TypePong {
			metrics.PongsReceivedTotal.Inc()
			m.mu.Lock()
			m.lastPong = time.Now()
			m.mu.Unlock()
			select {
			case pongs <- struct{}{}:
			default:
			}
			continue
		}

		select {
		case m.events <- Event{Kind: EventMessage, Message: msg}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
