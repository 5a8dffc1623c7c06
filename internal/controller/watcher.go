package controller

import (
	"github.com/yourusername/webui-watchdog/internal/hub"
	"github.com/yourusername/webui-watchdog/internal/metrics"
	"github.com/yourusername/webui-watchdog/internal/progress"
)

// watchProgress feeds tracker updates to the loading monitor. A task shows
// an ETA while it is active and not yet done.
func (c *Controller) watchProgress(u progress.Update) {
	c.loading.Notify(u.Active && !u.Done)
}

// hideLoadingIndicator runs when an ETA has been shown for longer than its
// time box
func (c *Controller) hideLoadingIndicator() {
	metrics.LoadingIndicatorsHidden.Inc()

	visible := false
	c.hub.Broadcast(hub.Message{
		Type:    hub.TypeETA,
		Visible: &visible,
	})
}
