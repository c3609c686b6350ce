package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gitevents/internal"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
)

const headerMessageUUID = "Message-Uuid"

// natsSubscriber reads core NATS subjects. Core NATS delivers at most once,
// so a nacked message is logged and dropped rather than redelivered.
type natsSubscriber struct {
	conn    *nats.Conn
	buffer  int
	logger  watermill.LoggerAdapter
	closing chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newNATSSubscriber(cfg internal.NATSConfig, buffer int64, logger watermill.LoggerAdapter) (*natsSubscriber, error) {
	if cfg.URL == "" {
		return nil, permanentError{err: errors.New("nats url is required")}
	}
	if buffer <= 0 {
		buffer = 64
	}
	name := cfg.Name
	if name != "" {
		name += "-worker"
	}
	conn, err := nats.Connect(cfg.URL, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsSubscriber{
		conn:    conn,
		buffer:  int(buffer),
		logger:  logger,
		closing: make(chan struct{}),
	}, nil
}

func (s *natsSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	raw := make(chan *nats.Msg, s.buffer)
	sub, err := s.conn.ChanSubscribe(topic, raw)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closing:
				return
			case in := <-raw:
				if !s.deliver(ctx, out, toMessage(ctx, in)) {
					return
				}
			}
		}
	}()
	return out, nil
}

// deliver hands msg to the consumer and waits for it to be settled.
func (s *natsSubscriber) deliver(ctx context.Context, out chan<- *message.Message, msg *message.Message) bool {
	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Info("message nacked, dropping", watermill.LogFields{"message_uuid": msg.UUID})
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
	return true
}

func toMessage(ctx context.Context, in *nats.Msg) *message.Message {
	uuid := in.Header.Get(headerMessageUUID)
	if uuid == "" {
		uuid = watermill.NewUUID()
	}
	msg := message.NewMessage(uuid, in.Data)
	msg.SetContext(ctx)
	for key, values := range in.Header {
		if key == headerMessageUUID || len(values) == 0 {
			continue
		}
		msg.Metadata.Set(key, values[0])
	}
	return msg
}

func (s *natsSubscriber) Close() error {
	s.once.Do(func() {
		close(s.closing)
		s.wg.Wait()
		s.conn.Close()
	})
	return nil
}
