package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/minewatch/pitguard/internal/api"
	"github.com/minewatch/pitguard/internal/models"
)

// Options configures a Subscriber. Zero values fall back to the defaults
// noted on each field.
type Options struct {
	BaseURL string

	InitialBackoff time.Duration // 1s
	MaxBackoff     time.Duration // 30s
	BackoffFactor  float64       // 1.8

	// BootstrapGrace is how long to wait after connecting before pulling a
	// full snapshot when no event has arrived yet. 10s.
	BootstrapGrace time.Duration
}

func (o *Options) withDefaults() {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.BackoffFactor <= 1 {
		o.BackoffFactor = 1.8
	}
	if o.BootstrapGrace <= 0 {
		o.BootstrapGrace = 10 * time.Second
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
}

// Subscriber attaches to the live event stream and maintains a LiveState.
// Dropped connections are retried with exponential backoff; the backoff
// resets once a connection is established.
type Subscriber struct {
	opts   Options
	http   *http.Client
	rest   *resty.Client
	state  *LiveState
	logger *slog.Logger
}

func NewSubscriber(opts Options, logger *slog.Logger) *Subscriber {
	opts.withDefaults()
	return &Subscriber{
		opts:  opts,
		http:  &http.Client{}, // no timeout, the stream is long-lived
		rest:  resty.New().SetBaseURL(opts.BaseURL).SetTimeout(10 * time.Second),
		state: NewLiveState(),
		logger: logger.With(
			slog.String("component", "subscriber"),
			slog.String("base_url", opts.BaseURL),
		),
	}
}

func (s *Subscriber) State() *LiveState { return s.state }

// Run blocks until ctx is cancelled, reconnecting as needed. onEvent, if
// non-nil, is called for every event after it has been applied to the state.
func (s *Subscriber) Run(ctx context.Context, onEvent func(models.StreamEvent)) error {
	backoff := s.opts.InitialBackoff
	for {
		connected, err := s.attach(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.opts.InitialBackoff
		}
		s.logger.Warn("stream disconnected", slog.Any("error", err), slog.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * s.opts.BackoffFactor)
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
}

// attach opens one stream connection and consumes it until it breaks.
// connected reports whether the server accepted the stream, so the caller
// can reset its retry backoff.
func (s *Subscriber) attach(ctx context.Context, onEvent func(models.StreamEvent)) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+"/api/stream", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream attach: unexpected status %d", resp.StatusCode)
	}
	s.logger.Info("stream connected")

	events := make(chan models.StreamEvent)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		readErr <- s.readEvents(resp.Body, events)
	}()

	// If the server goes quiet right after the attach, pull one full
	// snapshot so the state is not empty while we wait for ticks.
	grace := time.NewTimer(s.opts.BootstrapGrace)
	defer grace.Stop()
	received := false

	for {
		select {
		case <-ctx.Done():
			resp.Body.Close()
			for range events {
			}
			<-readErr
			return true, ctx.Err()
		case <-grace.C:
			if !received {
				if err := s.bootstrap(ctx); err != nil {
					s.logger.Warn("bootstrap pull failed", slog.Any("error", err))
				}
			}
		case e, ok := <-events:
			if !ok {
				return true, <-readErr
			}
			received = true
			s.state.Apply(e)
			if onEvent != nil {
				onEvent(e)
			}
		}
	}
}

// readEvents parses the SSE framing. Data payloads are single-line JSON;
// comment lines (keep-alives) are skipped.
func (s *Subscriber) readEvents(body io.Reader, out chan<- models.StreamEvent) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		e, err := models.DecodeEvent([]byte(strings.TrimPrefix(line, "data: ")))
		if err != nil {
			s.logger.Warn("undecodable event", slog.Any("error", err))
			continue
		}
		out <- e
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}

func (s *Subscriber) bootstrap(ctx context.Context) error {
	var snap api.BootstrapResponse
	resp, err := s.rest.R().SetContext(ctx).SetResult(&snap).Get("/api/bootstrap")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("bootstrap: unexpected status %d", resp.StatusCode())
	}
	s.state.ApplyBootstrap(snap)
	s.logger.Info("applied bootstrap snapshot", slog.Int("zones", len(snap.Zones)))
	return nil
}
