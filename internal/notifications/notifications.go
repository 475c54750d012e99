package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

type Options struct {
	Server        string
	Topic         string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration

	BreakerFailures int
	BreakerOpen     time.Duration

	Logger zerolog.Logger
}

// Notifier publishes push notifications to an ntfy server. Transient
// failures are retried with backoff; repeated failures open a circuit
// breaker so a dead server costs nothing on later alerts.
type Notifier struct {
	client        *http.Client
	server        string
	topic         string
	maxRetries    int
	retryInterval time.Duration
	breaker       *gobreaker.CircuitBreaker
	log           zerolog.Logger
}

type message struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// New returns nil when no topic is configured; a nil Notifier drops every
// message.
func New(opts Options) *Notifier {
	if opts.Topic == "" {
		opts.Logger.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpen <= 0 {
		opts.BreakerOpen = time.Minute
	}

	n := &Notifier{
		client:        &http.Client{Timeout: opts.Timeout},
		server:        strings.TrimRight(opts.Server, "/"),
		topic:         opts.Topic,
		maxRetries:    opts.MaxRetries,
		retryInterval: opts.RetryInterval,
		log:           opts.Logger,
	}

	failures := uint32(opts.BreakerFailures)
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ntfy",
		Timeout: opts.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notification circuit breaker changed state")
		},
	})

	n.log.Info().
		Str("server", n.server).
		Str("topic", n.topic).
		Msg("Ntfy notifications initialized")

	return n
}

func (n *Notifier) Send(ctx context.Context, title, body string, priority int, tags ...string) error {
	if n == nil {
		return nil
	}

	msg := message{
		Topic:    n.topic,
		Title:    title,
		Message:  body,
		Priority: priority,
		Tags:     tags,
	}

	_, err := n.breaker.Execute(func() (interface{}, error) {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = n.retryInterval
		bo.MaxElapsedTime = 30 * time.Second

		policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(n.maxRetries)), ctx)
		return nil, backoff.Retry(func() error {
			return n.post(ctx, msg)
		}, policy)
	})
	if err != nil {
		return fmt.Errorf("send notification %q: %w", title, err)
	}

	n.log.Debug().
		Str("title", title).
		Msg("Notification sent successfully")
	return nil
}

func (n *Notifier) post(ctx context.Context, msg message) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal notification: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.server, bytes.NewReader(jsonData))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("ntfy rejected notification: %d", resp.StatusCode))
	default:
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}
}
