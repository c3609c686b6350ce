package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gitevents/internal"
	"gitevents/pkg/api"
	"gitevents/pkg/webhook"
	"gitevents/pkg/worker"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver, events API and dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg internal.Config) error {
	logger := internal.NewLogger("server")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.WithError(err).Warn("database not reachable yet")
	}
	cancelPing()

	location, err := cfg.Query.Location()
	if err != nil {
		return err
	}

	fanout, closeFanout, err := buildFanout(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFanout()

	mergeDetection := cfg.Ingest.MergeDetection == nil || *cfg.Ingest.MergeDetection
	handler := webhook.NewGitHubHandler(store, fanout, internal.NewLogger("webhook"), cfg.Server.MaxBodyBytes, mergeDetection)

	router := api.NewRouter(api.RouterConfig{
		WebhookPath: cfg.Ingest.Path,
		Webhook:     handler,
		Events: &api.RecentEvents{
			Store:    store,
			Window:   cfg.Query.Window(),
			Location: location,
		},
		Logger:             internal.NewLogger("api"),
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimitRPS:       cfg.Server.RateLimitRPS,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		MetricsEnabled:     cfg.Server.MetricsEnabled,
		MetricsPath:        cfg.Server.MetricsPath,
	})

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderMS) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutMS) * time.Millisecond,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s (webhook %s, window %s, timezone %s)",
			server.Addr, cfg.Ingest.Path, cfg.Query.Window(), location)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildFanout wires the publisher, the rule engine and, when the in-process
// gochannel driver is enabled, a worker that logs every published notification.
func buildFanout(ctx context.Context, cfg internal.Config) (*internal.Fanout, func(), error) {
	logger := internal.NewLogger("fanout")
	if !cfg.Publish.Enabled {
		logger.Debug("event fan-out disabled")
		return nil, func() {}, nil
	}

	wmLogger := internal.NewWatermillLogger(internal.NewLogger("publisher"))
	local := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.Publish.Watermill.GoChannel.OutputChannelBuffer,
		Persistent:                     cfg.Publish.Watermill.GoChannel.Persistent,
		BlockPublishUntilSubscriberAck: cfg.Publish.Watermill.GoChannel.BlockPublishUntilSubscriberAck,
	}, wmLogger)
	internal.RegisterPublisherDriver("gochannel", func(internal.WatermillConfig, watermill.LoggerAdapter) (message.Publisher, func() error, error) {
		return local, nil, nil
	})

	publisher, err := internal.NewPublisher(cfg.Publish.Watermill, wmLogger)
	if err != nil {
		_ = local.Close()
		return nil, nil, err
	}
	rules, err := internal.NewRuleEngine(cfg.Publish.Rules, internal.NewLogger("rules"))
	if err != nil {
		_ = publisher.Close()
		_ = local.Close()
		return nil, nil, err
	}
	fanout := internal.NewFanout(publisher, rules, cfg.Publish.TopicPrefix, logger).
		WithTimeout(cfg.Publish.Timeout())

	if !usesDriver(cfg.Publish.Watermill, "gochannel") {
		return fanout, func() {
			_ = publisher.Close()
			_ = local.Close()
		}, nil
	}

	workerLogger := internal.NewLogger("worker")
	w := worker.New(
		worker.WithSubscriber(local),
		worker.WithTopics(worker.TopicsFromConfig(cfg.Publish)...),
		worker.WithRetry(worker.Drop{}),
		worker.WithLogger(workerLogger),
		worker.WithMiddleware(worker.MiddlewareFromWatermill(middleware.Recoverer)),
		worker.WithFallback(logNotification(workerLogger)),
	)
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(workerCtx); err != nil {
			workerLogger.WithError(err).Error("worker stopped")
		}
	}()

	return fanout, func() {
		cancel()
		<-done
		_ = publisher.Close()
		_ = local.Close()
	}, nil
}

func logNotification(logger *logrus.Entry) worker.Handler {
	return func(ctx context.Context, evt *worker.Event) error {
		internal.WithRequestID(logger, evt.Notification.RequestID).WithFields(logrus.Fields{
			"topic":     evt.Topic,
			"event_id":  evt.Notification.ID,
			"action":    evt.Action(),
			"author":    evt.Notification.Author,
			"to_branch": evt.Notification.ToBranch,
		}).Info("event published")
		return nil
	}
}
