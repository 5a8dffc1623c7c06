package controller

import (
	"context"
	"fmt"

	"github.com/yourusername/webui-watchdog/internal/metrics"
	"github.com/yourusername/webui-watchdog/internal/session"
	"github.com/yourusername/webui-watchdog/internal/watchdog"
)

const reconnectWatchdog = "reconnect"

// runReconnect polls until the UI has rendered, then resumes any task that
// was in flight
func (c *Controller) runReconnect(ctx context.Context) error {
	c.logger.Info().
		Dur("interval", c.cfg.ReconnectInterval).
		Msg("Waiting for the UI to render")

	w := c.newReconnectWatchdog()
	c.broadcastState(reconnectWatchdog, watchdog.StateWaiting)

	return c.await(ctx, w, w.Start(ctx))
}

func (c *Controller) newReconnectWatchdog() *watchdog.Watchdog {
	return watchdog.New(watchdog.Options{
		Name:         reconnectWatchdog,
		Interval:     c.cfg.ReconnectInterval,
		Ready:        c.client.AnchorPresent,
		OnConfirm:    c.reconnect,
		CheckTimeout: c.cfg.RequestTimeout,
		Clock:        c.clock,
		Logger:       c.logger,
	})
}

// reconnect runs once, when the anchor has been observed
func (c *Controller) reconnect(ctx context.Context) error {
	c.setReady(true)
	c.broadcastState(reconnectWatchdog, watchdog.StateConfirmed)

	// Take reads and clears the key in one step, so a task id is resumed at
	// most once even with several watchdogs sharing the store.
	taskID, ok, err := c.store.Take(ctx, session.TaskKey)
	if err != nil {
		metrics.ResumesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to read persisted task: %w", err)
	}

	if !ok {
		metrics.ResumesTotal.WithLabelValues("nothing").Inc()
		c.logger.Info().Msg("UI reconnected, no task to resume")
		return nil
	}

	c.logger.Info().Str("task_id", taskID).Msg("UI reconnected, resuming task")

	if err := c.resumer.Resume(ctx, taskID); err != nil {
		metrics.ResumesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to resume task %s: %w", taskID, err)
	}

	metrics.ResumesTotal.WithLabelValues("resumed").Inc()
	return nil
}
