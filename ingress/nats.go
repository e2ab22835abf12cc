package ingress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Subscriber feeds host events published on a NATS subject into an Ingress
type Subscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// Subscribe connects to url and consumes event envelopes from subject
func Subscribe(url, subject string, in *Ingress) (*Subscriber, error) {
	nc, err := nats.Connect(url,
		nats.Name("padhook-ingress"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS ingress disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrlRedacted()).Msg("NATS ingress reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := in.HandleMessage(msg.Data); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Ignoring host event")
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	log.Info().Str("subject", subject).Msg("NATS ingress subscribed")
	return &Subscriber{nc: nc, sub: sub}, nil
}

// HandleMessage decodes one envelope and dispatches it
func (in *Ingress) HandleMessage(data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("invalid event envelope: %w", err)
	}
	return in.Handle(ev)
}

// Close unsubscribes and closes the connection
func (s *Subscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Msg("NATS unsubscribe failed")
		}
	}
	s.nc.Close()
	return nil
}
