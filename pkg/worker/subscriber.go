package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gitevents/internal"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// SubscriberFactory builds a subscriber for a named driver.
type SubscriberFactory func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error)

var subscriberFactories = map[string]SubscriberFactory{
	"gochannel": func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
			Persistent:                     cfg.GoChannel.Persistent,
			BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
		}, logger), nil
	},
	"nats": func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		sub, err := newNATSSubscriber(cfg.NATS, cfg.GoChannel.OutputChannelBuffer, logger)
		if err != nil {
			return nil, err
		}
		return sub, nil
	},
	"nats_streaming": func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
			return nil, permanentError{err: errors.New("nats cluster_id and client_id are required")}
		}
		natsCfg := wmnats.StreamingSubscriberConfig{
			ClusterID:   cfg.NATS.ClusterID,
			ClientID:    cfg.NATS.ClientID + cfg.NATS.ClientIDSuffix,
			DurableName: cfg.NATS.Durable,
			Unmarshaler: wmnats.GobMarshaler{},
		}
		if cfg.NATS.URL != "" {
			natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
		}
		return wmnats.NewStreamingSubscriber(natsCfg, logger)
	},
	"kafka": func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, permanentError{err: errors.New("kafka brokers are required")}
		}
		return wmkafka.NewSubscriber(wmkafka.SubscriberConfig{
			Brokers:       cfg.Kafka.Brokers,
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, nil, wmkafka.DefaultMarshaler{}, logger)
	},
	"amqp": func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		if cfg.AMQP.URL == "" {
			return nil, permanentError{err: errors.New("amqp url is required")}
		}
		amqpCfg, err := internal.AMQPConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode, "worker")
		if err != nil {
			return nil, permanentError{err: err}
		}
		return wmamqp.NewSubscriber(amqpCfg, logger)
	},
	"sql": func(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
			return nil, permanentError{err: errors.New("sql driver and dsn are required")}
		}
		schemaAdapter, offsetsAdapter, err := internal.SQLAdapters(cfg.SQL.Dialect)
		if err != nil {
			return nil, permanentError{err: err}
		}
		db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, permanentError{err: err}
		}
		sub, err := wmsql.NewSubscriber(db, wmsql.SubscriberConfig{
			ConsumerGroup:    cfg.SQL.ConsumerGroup,
			SchemaAdapter:    schemaAdapter,
			OffsetsAdapter:   offsetsAdapter,
			InitializeSchema: cfg.SQL.InitializeSchema,
		}, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &closingSubscriber{Subscriber: sub, closeFn: db.Close}, nil
	},
}

// closingSubscriber releases a resource the wrapped subscriber does not own.
type closingSubscriber struct {
	message.Subscriber
	closeFn func() error
}

func (c *closingSubscriber) Close() error {
	return errors.Join(c.Subscriber.Close(), c.closeFn())
}

// RegisterSubscriberDriver makes a custom subscriber driver available to BuildSubscriber.
func RegisterSubscriberDriver(name string, factory SubscriberFactory) {
	if name == "" || factory == nil {
		return
	}
	subscriberFactories[strings.ToLower(name)] = factory
}

// BuildAttempts and BuildDelay bound how long BuildSubscriber waits for a broker.
var (
	BuildAttempts = 10
	BuildDelay    = 2 * time.Second
)

// NewFromConfig creates a worker reading from the configured publish drivers.
func NewFromConfig(cfg internal.WatermillConfig, logger watermill.LoggerAdapter, opts ...Option) (*Worker, error) {
	sub, err := BuildSubscriber(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithSubscriber(sub))
	return New(opts...), nil
}

// BuildSubscriber creates a subscriber for the drivers the fan-out publishes to.
// Several drivers are merged into one subscriber; drivers that cannot be built
// are skipped.
func BuildSubscriber(cfg internal.WatermillConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = internal.NewWatermillLogger(internal.NewLogger("worker"))
	}

	drivers := uniqueStrings(cfg.Drivers)
	if len(drivers) == 0 {
		driver := cfg.Driver
		if driver == "" {
			driver = "gochannel"
		}
		return buildSingleSubscriber(cfg, logger, driver)
	}
	if len(drivers) == 1 {
		return buildSingleSubscriber(cfg, logger, drivers[0])
	}

	subs := make([]namedSubscriber, 0, len(drivers))
	for _, driver := range drivers {
		sub, err := buildSingleSubscriber(cfg, logger, driver)
		if err != nil {
			logger.Error("subscriber init failed, skipping driver", err, watermill.LogFields{
				"driver": driver,
			})
			continue
		}
		subs = append(subs, namedSubscriber{driver: driver, sub: sub})
	}
	if len(subs) == 0 {
		return nil, errors.New("no supported subscriber drivers configured")
	}
	return &multiSubscriber{
		subscribers: subs,
		bufferSize:  cfg.GoChannel.OutputChannelBuffer,
	}, nil
}

func buildSingleSubscriber(cfg internal.WatermillConfig, logger watermill.LoggerAdapter, driver string) (message.Subscriber, error) {
	factory, ok := subscriberFactories[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported subscriber driver: %s", driver)
	}
	return retrySubscriberBuild(func() (message.Subscriber, error) {
		return factory(cfg, logger)
	})
}

func retrySubscriberBuild(build func() (message.Subscriber, error)) (message.Subscriber, error) {
	attempts := BuildAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		sub, err := build()
		if err == nil {
			return sub, nil
		}
		var permanent permanentError
		if errors.As(err, &permanent) {
			return nil, err
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(BuildDelay)
		}
	}
	return nil, lastErr
}

// permanentError marks configuration problems that retrying cannot fix.
type permanentError struct {
	err error
}

func (e permanentError) Error() string {
	return e.err.Error()
}

func (e permanentError) Unwrap() error {
	return e.err
}

type multiSubscriber struct {
	subscribers []namedSubscriber
	bufferSize  int64
}

type namedSubscriber struct {
	driver string
	sub    message.Subscriber
}

func (m *multiSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if len(m.subscribers) == 0 {
		return nil, errors.New("no subscribers configured")
	}

	buffer := m.bufferSize
	if buffer <= 0 {
		buffer = 64
	}
	out := make(chan *message.Message, buffer)

	channels := make([]<-chan *message.Message, 0, len(m.subscribers))
	for _, entry := range m.subscribers {
		ch, err := entry.sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.driver, err)
		}
		channels = append(channels, ch)
	}

	var wg sync.WaitGroup
	wg.Add(len(channels))
	for i, ch := range channels {
		driver := m.subscribers[i].driver
		go func(ch <-chan *message.Message, driver string) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					msg.Metadata.Set("driver", driver)
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(ch, driver)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func (m *multiSubscriber) Close() error {
	var err error
	for _, entry := range m.subscribers {
		err = errors.Join(err, entry.sub.Close())
	}
	return err
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
