package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gitevents/internal"
	"gitevents/pkg/worker"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
)

func newListenCommand(opts *rootOptions) *cobra.Command {
	var (
		topics      []string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Consume published event notifications and print them as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if len(topics) == 0 {
				topics = worker.TopicsFromConfig(cfg.Publish)
			}

			logger := internal.NewLogger("listen")
			w, err := worker.NewFromConfig(cfg.Publish.Watermill,
				internal.NewWatermillLogger(logger),
				worker.WithTopics(topics...),
				worker.WithConcurrency(concurrency),
				worker.WithRetry(worker.Drop{}),
				worker.WithLogger(logger),
				worker.WithMiddleware(worker.MiddlewareFromWatermill(middleware.Recoverer)),
				worker.WithFallback(printNotification(cmd.OutOrStdout())),
				worker.WithListener(worker.Listener{
					OnError: func(ctx context.Context, evt *worker.Event, err error) {
						logger.WithError(err).Warn("notification failed")
					},
				}),
			)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger.Infof("listening on %v", topics)
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "Topic to consume (repeatable); defaults to every configured topic")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Notifications handled in parallel")
	return cmd
}

type notificationLine struct {
	Topic        string                `json:"topic"`
	Notification internal.Notification `json:"notification"`
}

func printNotification(out io.Writer) worker.Handler {
	var mu sync.Mutex
	encoder := json.NewEncoder(out)
	return func(ctx context.Context, evt *worker.Event) error {
		mu.Lock()
		defer mu.Unlock()
		return encoder.Encode(notificationLine{Topic: evt.Topic, Notification: evt.Notification})
	}
}
