package controller

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/yourusername/webui-watchdog/internal/config"
	"github.com/yourusername/webui-watchdog/internal/hub"
	"github.com/yourusername/webui-watchdog/internal/loading"
	"github.com/yourusername/webui-watchdog/internal/metrics"
	"github.com/yourusername/webui-watchdog/internal/progress"
	"github.com/yourusername/webui-watchdog/internal/session"
	"github.com/yourusername/webui-watchdog/internal/watchdog"
	"github.com/yourusername/webui-watchdog/internal/webui"
	"k8s.io/utils/clock"
)

// resumer re-attaches progress display to an in-flight task
type resumer interface {
	Resume(ctx context.Context, taskID string) error
}

// Controller runs the watchdogs against the web UI backend
type Controller struct {
	cfg     *config.Config
	client  *webui.Client
	store   *session.Store
	tracker *progress.Tracker
	resumer resumer
	hub     *hub.Hub
	loading *loading.Monitor
	clock   clock.WithTicker
	logger  zerolog.Logger

	ready atomic.Bool
}

// NewController creates a new watchdog controller
func NewController(cfg *config.Config, store *session.Store, logger zerolog.Logger) (*Controller, error) {
	return newController(cfg, store, clock.RealClock{}, logger)
}

func newController(cfg *config.Config, store *session.Store, clk clock.WithTicker, logger zerolog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}

	c := &Controller{
		cfg:    cfg,
		client: webui.NewClient(cfg.WebUIURL, cfg.ProgressPath, cfg.AnchorID, cfg.RequestTimeout, logger),
		store:  store,
		hub:    hub.NewHub(logger),
		clock:  clk,
		logger: logger.With().Str("component", "controller").Logger(),
	}

	c.loading = loading.NewMonitor(loading.Options{
		HideAfter:     cfg.LoadingHideAfter,
		CheckInterval: cfg.LoadingCheckInterval,
		Hide:          c.hideLoadingIndicator,
		Clock:         clk,
		Logger:        logger,
	})

	c.tracker = progress.NewTracker(c.client, progress.Options{
		Interval:          cfg.ProgressInterval,
		InactivityTimeout: cfg.InactivityTimeout,
		Clock:             clk,
		Logger:            logger,
	}, c.hub, progress.PublisherFunc(c.watchProgress))
	c.resumer = c.tracker

	return c, nil
}

// Run starts the controller in the configured mode and blocks until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info().
		Str("mode", c.cfg.Mode).
		Str("webui_url", c.cfg.WebUIURL).
		Str("anchor_id", c.cfg.AnchorID).
		Msg("Starting watchdog controller")

	go c.hub.Run(ctx)
	defer c.loading.Close()
	defer c.tracker.Stop()

	switch c.cfg.Mode {
	case config.ModeRestart:
		if err := c.runRestart(ctx); err != nil {
			return err
		}
	case config.ModeWait:
		if err := c.runWaitForServer(ctx); err != nil {
			return err
		}
	}

	if err := c.runReconnect(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// Ready reports whether the reconnect watchdog has confirmed the UI
func (c *Controller) Ready() bool {
	return c.ready.Load()
}

// Hub returns the websocket handler for browser clients
func (c *Controller) Hub() http.Handler {
	return c.hub
}

// await blocks until w has finished. It returns ctx.Err() when the context
// ends first.
func (c *Controller) await(ctx context.Context, w *watchdog.Watchdog, h *watchdog.Handle) error {
	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Stop()
		return ctx.Err()
	}

	if w.State() != watchdog.StateConfirmed {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%s watchdog stopped before confirmation", w.Name())
	}
	return nil
}

func (c *Controller) broadcastState(name string, state watchdog.State) {
	c.hub.Broadcast(hub.Message{
		Type:     hub.TypeState,
		Watchdog: name,
		State:    state.String(),
	})
}

func (c *Controller) setReady(ready bool) {
	c.ready.Store(ready)
	if ready {
		metrics.HealthStatus.Set(1)
	} else {
		metrics.HealthStatus.Set(0)
	}
}
