// Package notify raises a desktop notification when a job finishes.
package notify

import (
	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/gen2brain/beeep"
)

const title = "deepfakery"

// Notifier sends notifications. The zero value is disabled.
type Notifier struct {
	Enabled bool
	send    func(title, message, icon string) error
}

// New returns a notifier that uses the platform notification service.
func New(enabled bool) *Notifier {
	return &Notifier{Enabled: enabled, send: beeep.Notify}
}

// Done reports a finished job. Failures to notify are logged and ignored.
func (n *Notifier) Done(message string) {
	if n == nil || !n.Enabled || n.send == nil {
		return
	}
	if err := n.send(title, message, ""); err != nil {
		logging.Debugf("Desktop notification failed: %v", err)
	}
}
