package controller

import (
	"context"

	"github.com/yourusername/webui-watchdog/internal/hub"
	"github.com/yourusername/webui-watchdog/internal/metrics"
	"github.com/yourusername/webui-watchdog/internal/watchdog"
	"github.com/yourusername/webui-watchdog/internal/webui"
)

const (
	shutdownWatchdog = "shutdown"
	serverWatchdog   = "server"
)

// runRestart follows a server restart: wait for the server to go away, give
// it ShutdownGrace, then wait for it to come back
func (c *Controller) runRestart(ctx context.Context) error {
	c.setReady(false)
	c.logger.Info().
		Dur("interval", c.cfg.RestartInterval).
		Msg("Server shutdown in progress, waiting for it to stop")

	w := watchdog.New(watchdog.Options{
		Name:     shutdownWatchdog,
		Interval: c.cfg.RestartInterval,
		// Any HTTP answer, even an error status, means the server is still up
		Ready: func(ctx context.Context) (bool, error) {
			err := c.client.Ping(ctx)
			return err != nil && !webui.IsStatusError(err), nil
		},
		CheckTimeout: c.cfg.RequestTimeout,
		Clock:        c.clock,
		Logger:       c.logger,
	})
	c.broadcastState(shutdownWatchdog, watchdog.StateWaiting)

	if err := c.await(ctx, w, w.Start(ctx)); err != nil {
		return err
	}
	c.broadcastState(shutdownWatchdog, watchdog.StateConfirmed)

	select {
	case <-c.clock.After(c.cfg.ShutdownGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.runWaitForServer(ctx)
}

// runWaitForServer polls the liveness endpoint until it succeeds, then
// forces a reload
func (c *Controller) runWaitForServer(ctx context.Context) error {
	c.setReady(false)
	c.logger.Info().
		Dur("interval", c.cfg.RestartInterval).
		Msg("Waiting for server")

	w := watchdog.New(watchdog.Options{
		Name:     serverWatchdog,
		Interval: c.cfg.RestartInterval,
		Ready: func(ctx context.Context) (bool, error) {
			if err := c.client.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		OnConfirm:    c.reload,
		CheckTimeout: c.cfg.RequestTimeout,
		Clock:        c.clock,
		Logger:       c.logger,
	})
	c.broadcastState(serverWatchdog, watchdog.StateWaiting)

	return c.await(ctx, w, w.Start(ctx))
}

// reload tells connected browsers to reload. The caller starts a fresh
// reconnect watchdog afterwards.
func (c *Controller) reload(ctx context.Context) error {
	metrics.Reloads.Inc()
	c.logger.Info().Msg("Server is back, forcing reload")

	c.broadcastState(serverWatchdog, watchdog.StateConfirmed)
	c.hub.Broadcast(hub.Message{Type: hub.TypeReload})
	return nil
}
