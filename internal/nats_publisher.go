package internal

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
)

// headerMessageUUID matches the header watermill-http uses for message ids.
const headerMessageUUID = "Message-Uuid"

// natsPublisher publishes messages on core NATS subjects named after the topic.
type natsPublisher struct {
	conn         *nats.Conn
	flushTimeout time.Duration
	logger       watermill.LoggerAdapter
}

func newNATSPublisher(cfg NATSConfig, logger watermill.LoggerAdapter) (*natsPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	opts := []nats.Option{nats.Name(cfg.Name)}
	if logger != nil {
		opts = append(opts,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Error("nats disconnected", err, watermill.LogFields{"url": cfg.URL})
				}
			}),
			nats.ReconnectHandler(func(conn *nats.Conn) {
				logger.Info("nats reconnected", watermill.LogFields{"url": conn.ConnectedUrl()})
			}),
		)
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsPublisher{
		conn:         conn,
		flushTimeout: time.Duration(cfg.FlushTimeoutMS) * time.Millisecond,
		logger:       logger,
	}, nil
}

func (p *natsPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		out := nats.NewMsg(topic)
		out.Data = msg.Payload
		out.Header.Set(headerMessageUUID, msg.UUID)
		for key, value := range msg.Metadata {
			out.Header.Set(key, value)
		}
		if err := p.conn.PublishMsg(out); err != nil {
			return fmt.Errorf("nats publish %s: %w", topic, err)
		}
	}
	if p.flushTimeout > 0 {
		return p.conn.FlushTimeout(p.flushTimeout)
	}
	return nil
}

func (p *natsPublisher) Close() error {
	p.conn.Close()
	return nil
}
