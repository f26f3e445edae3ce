package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kyxap1/geolocator/internal/locator"
	"github.com/kyxap1/geolocator/internal/types"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ChangeFunc is called when the observed public address changes.
// prev is nil on the first successful observation.
type ChangeFunc func(prev, cur *types.GeoLocation)

// Watcher periodically resolves the caller's own address and reports changes
type Watcher struct {
	locator  locator.Locator
	logger   *logrus.Logger
	schedule string
	timeout  time.Duration
	onChange ChangeFunc

	mu   sync.Mutex
	last *types.GeoLocation

	cron *cron.Cron
}

// New creates a watcher running on a robfig/cron schedule such as "@every 5m".
// timeout bounds each probe; zero means no extra bound beyond the client's own.
func New(loc locator.Locator, schedule string, timeout time.Duration, logger *logrus.Logger, onChange ChangeFunc) (*Watcher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", schedule, err)
	}

	return &Watcher{
		locator:  loc,
		logger:   logger,
		schedule: schedule,
		timeout:  timeout,
		onChange: onChange,
	}, nil
}

// Check runs a single probe. It returns true when the address differs from the
// previous successful probe. Errors and "fail" answers leave the last known
// address untouched.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	loc, err := w.locator.Resolve(ctx, "")
	if err != nil {
		w.logger.WithError(err).Warn("Public address probe failed")
		return false, err
	}

	if !loc.Succeeded() {
		w.logger.WithFields(logrus.Fields{
			"status":  loc.Status,
			"message": loc.Message,
		}).Warn("Geolocation service could not resolve the public address")
		return false, nil
	}

	w.mu.Lock()
	prev := w.last
	changed := prev == nil || prev.Query != loc.Query
	if changed {
		w.last = loc
	}
	w.mu.Unlock()

	if !changed {
		w.logger.WithField("ip", loc.Query).Debug("Public address unchanged")
		return false, nil
	}

	fields := logrus.Fields{
		"ip":      loc.Query,
		"country": loc.Country,
		"city":    loc.City,
		"isp":     loc.ISP,
	}
	if prev != nil {
		fields["previous_ip"] = prev.Query
	}
	w.logger.WithFields(fields).Info("Public address changed")

	if w.onChange != nil {
		w.onChange(prev, loc)
	}
	return true, nil
}

// Last returns the most recent successful observation, or nil
func (w *Watcher) Last() *types.GeoLocation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Start runs an immediate probe and then schedules further probes
func (w *Watcher) Start(ctx context.Context) error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.schedule, func() {
		_, _ = w.Check(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule watcher: %w", err)
	}

	_, _ = w.Check(ctx)

	w.cron.Start()
	w.logger.Infof("Watching public address on schedule: %s", w.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running probe to finish
func (w *Watcher) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}
