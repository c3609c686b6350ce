package internal

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hashicorp/go-retryablehttp"
)

// newHTTPPublisher posts every message with watermill-http's default
// marshaling. Requests carry the message context, so the fan-out timeout also
// bounds retries.
func newHTTPPublisher(cfg HTTPConfig, logger watermill.LoggerAdapter) (*wmhttp.Publisher, error) {
	mode := strings.ToLower(cfg.Mode)
	if mode != "topic_url" && mode != "base_url" {
		return nil, fmt.Errorf("unsupported http mode: %s", cfg.Mode)
	}
	if mode == "base_url" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("http base_url is required for base_url mode")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("http max_retries must not be negative")
	}

	return wmhttp.NewPublisher(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
			target, err := httpTargetURL(cfg, topic)
			if err != nil {
				return nil, err
			}
			req, err := wmhttp.DefaultMarshalMessageFunc(target, msg)
			if err != nil {
				return nil, err
			}
			return req.WithContext(msg.Context()), nil
		},
		Client: retryingClient(cfg),
	}, logger)
}

func retryingClient(cfg HTTPConfig) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	if cfg.TimeoutMS > 0 {
		client.HTTPClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return client.StandardClient()
}
