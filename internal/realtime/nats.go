package realtime

// NATS BRIDGE:
// With a single server process the Hub alone is enough. When several
// instances run behind a load balancer, a vote cast on instance A must also
// reach browsers connected to instance B. The Bridge solves that:
//
//	service → Bridge.Publish → NATS subject → every instance's subscription
//	        → Hub.Broadcast → local WebSocket clients
//
// The publishing instance receives its own message back through the
// subscription, so Publish does NOT also hand the event to the local hub.
// If NATS is unreachable the bridge falls back to the local hub so at least
// this instance's clients stay current.

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sakif/xswarm-forum/internal/model"
)

// DefaultSubject is the NATS subject forum events travel on.
const DefaultSubject = "forum.events"

// Bridge relays forum events between instances over NATS.
type Bridge struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	hub     *Hub
	logger  *slog.Logger
}

// ConnectBridge dials NATS and subscribes the hub to subject.
func ConnectBridge(url, subject string, hub *Hub, logger *slog.Logger) (*Bridge, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url,
		nats.Name("xswarm-forum"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats async error", slog.String("error", err.Error()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	b := &Bridge{nc: nc, subject: subject, hub: hub, logger: logger}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		b.hub.Broadcast(msg.Data)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	b.sub = sub

	logger.Info("nats bridge connected",
		slog.String("url", nc.ConnectedUrl()),
		slog.String("subject", subject),
	)
	return b, nil
}

// Publish sends the event to every instance, including this one.
func (b *Bridge) Publish(event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("encoding realtime event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := b.nc.Publish(b.subject, data); err != nil {
		b.logger.Warn("nats publish failed, delivering locally only",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
		b.hub.Broadcast(data)
	}
}

// Close unsubscribes and drains pending messages before closing.
func (b *Bridge) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			b.logger.Warn("nats unsubscribe", slog.String("error", err.Error()))
		}
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
