package scheduler

import (
	"fmt"
	"time"
)

// Trigger is a named periodic activity.
type Trigger struct {
	Name  string        // unique trigger name, e.g. "poll"
	Every time.Duration // period; cron runs @every at one-second granularity
	Run   func()        // must return quickly; long work belongs elsewhere
}

func (t Trigger) spec() (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("trigger has no name")
	}
	if t.Every < time.Second {
		return "", fmt.Errorf("trigger %q: period %s is below one second", t.Name, t.Every)
	}
	if t.Run == nil {
		return "", fmt.Errorf("trigger %q has no func", t.Name)
	}
	return "@every " + t.Every.String(), nil
}
