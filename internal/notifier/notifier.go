package notifier

import (
	"github.com/pfrederiksen/marathon-events/internal/query"
)

// Notifier defines the interface for posting marathon announcements
type Notifier interface {
	// Notify posts one announcement per marathon
	Notify(marathons []query.View) error
}
