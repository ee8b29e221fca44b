package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/infra/httpapi"
	"github.com/runoshun/termux-tasker/internal/usecase"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// RunRelay consumes the callback queue until ctx is canceled.
// Failed relays are logged by the use case and do not stop the loop.
func (c *Container) RunRelay(ctx context.Context) error {
	relay := c.RelayResultUseCase()
	c.Logger.Info(0, "relay", fmt.Sprintf("watching %s", c.Config.CallbacksDir))
	for {
		payload, err := c.CallbackSource.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read callback queue: %w", err)
		}
		_, _ = relay.Execute(ctx, usecase.RelayResultInput{Payload: payload})
	}
}

// RunExecd consumes the intent queue until ctx is canceled. Up to
// service.max_parallel intents run at once; when all slots are busy the
// queue is not read until one frees up. Running intents are waited for
// before returning.
func (c *Container) RunExecd(ctx context.Context) error {
	run := c.RunExecutionUseCase()
	c.Logger.Info(0, "execd", fmt.Sprintf("watching %s", c.Config.IntentsDir))

	var g errgroup.Group
	g.SetLimit(max(c.AppConfig.Service.MaxParallel, 1))
	defer func() { _ = g.Wait() }()

	for {
		intent, err := c.Intents.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read intent queue: %w", err)
		}
		g.Go(func() error {
			if _, err := run.Execute(ctx, usecase.RunExecutionInput{Intent: intent}); err != nil && ctx.Err() == nil {
				c.Logger.Error(intent.RequestCode(), "execd", err.Error())
			}
			return nil
		})
	}
}

// StartPruner schedules pruning of expired pending callbacks on the
// configured cron spec. The returned stop function waits for a running prune.
// Pruning is not scheduled when the TTL is zero.
func (c *Container) StartPruner(ctx context.Context) (stop func(), err error) {
	if c.Config.PendingTTL <= 0 {
		return func() {}, nil
	}
	prune := c.PruneCallbacksUseCase()
	scheduler := cron.New()
	_, err = scheduler.AddFunc(c.AppConfig.Relay.PruneSchedule, func() {
		if _, err := prune.Execute(ctx, usecase.PruneCallbacksInput{TTL: c.Config.PendingTTL}); err != nil {
			c.Logger.Error(0, "prune", err.Error())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid relay.prune_schedule %q: %w", c.AppConfig.Relay.PruneSchedule, err)
	}
	scheduler.Start()
	return func() {
		<-scheduler.Stop().Done()
	}, nil
}

// HTTPServer returns the HTTP API bound to the container's use cases.
func (c *Container) HTTPServer() *httpapi.Server {
	return httpapi.New(httpapi.Options{
		Dispatch:   c.DispatchExecutionUseCase(),
		Relay:      c.RelayResultUseCase(),
		Pending:    c.ListPendingUseCase(),
		Metrics:    c.Metrics.Handler(),
		Middleware: c.Metrics,
		Logger:     c.Logger,
		PendingTTL: c.Config.PendingTTL,
	})
}

// ServeOptions configures Serve.
type ServeOptions struct {
	Addr      string // Listen address (default: relay.listen)
	WithExecd bool   // Also run the reference execution service
}

// Serve runs the HTTP API, the relay loop and the pruner until ctx is
// canceled or one of them fails.
func (c *Container) Serve(ctx context.Context, opts ServeOptions) error {
	addr := opts.Addr
	if addr == "" {
		addr = c.AppConfig.Relay.Listen
	}
	if addr == "" {
		addr = domain.DefaultListenAddr
	}

	stopPruner, err := c.StartPruner(ctx)
	if err != nil {
		return err
	}
	defer stopPruner()

	srv := &http.Server{
		Addr:              addr,
		Handler:           c.HTTPServer().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.Info(0, "serve", fmt.Sprintf("listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return c.RunRelay(ctx)
	})
	if opts.WithExecd {
		g.Go(func() error {
			return c.RunExecd(ctx)
		})
	}
	return g.Wait()
}
