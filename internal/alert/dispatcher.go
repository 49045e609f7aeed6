package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/metrics"
	"github.com/alexanderjulianmartinez/autodq/internal/notify"
	"github.com/alexanderjulianmartinez/autodq/internal/refresh"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// Dispatcher forwards alerts newer than the last one each sink accepted.
// The first call only primes the watermarks with the newest result, so a
// restart does not replay history.
type Dispatcher struct {
	sinks []notify.Notifier
	rules config.RuleCatalog
	log   zerolog.Logger

	mu         sync.Mutex
	watermarks []time.Time
	primed     bool
}

// NewDispatcher tracks a watermark per notifier; a notify.Multi is split
// into its members so one failing sink does not hold back the others.
func NewDispatcher(sink notify.Notifier, rules config.RuleCatalog, log zerolog.Logger) *Dispatcher {
	sinks := []notify.Notifier{sink}
	if m, ok := sink.(notify.Multi); ok {
		sinks = m
	}
	return &Dispatcher{
		sinks:      sinks,
		rules:      rules,
		log:        log,
		watermarks: make([]time.Time, len(sinks)),
	}
}

// Hook adapts the dispatcher to a cache refresh hook.
func (d *Dispatcher) Hook() refresh.Hook {
	return func(ctx context.Context, snap *refresh.Snapshot) {
		if _, err := d.Dispatch(ctx, snap.Results); err != nil {
			d.log.Warn().Err(err).Msg("alert dispatch failed")
		}
	}
}

// Watermark returns the oldest sink watermark, the point from which
// alerts are still pending somewhere.
func (d *Dispatcher) Watermark() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	var oldest time.Time
	for i, w := range d.watermarks {
		if i == 0 || w.Before(oldest) {
			oldest = w
		}
	}
	return oldest
}

// Dispatch sends every sink the alerts in results that are newer than its
// watermark and returns how many alerts went out. A sink's watermark only
// advances once it accepted its batch.
func (d *Dispatcher) Dispatch(ctx context.Context, results []types.ValidationResult) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.primed {
		d.primed = true
		var newest time.Time
		for _, r := range results {
			if r.RunTimestamp.After(newest) {
				newest = r.RunTimestamp
			}
		}
		for i := range d.watermarks {
			d.watermarks[i] = newest
		}
		d.log.Debug().Time("watermark", newest).Int("results", len(results)).Msg("alert watermark primed")
		return 0, nil
	}

	feed := BuildFeed(results, d.rules)
	if len(feed) == 0 {
		return 0, nil
	}
	newest := feed[0].Time

	var (
		sent int
		errs []error
	)
	for i, sink := range d.sinks {
		fresh := newer(feed, d.watermarks[i])
		if len(fresh) == 0 {
			continue
		}
		if err := sink.Notify(ctx, notifications(fresh)); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", sink.Name(), err))
			continue
		}
		d.watermarks[i] = newest
		sent = max(sent, len(fresh))
		d.log.Info().Str("sink", sink.Name()).Int("alerts", len(fresh)).Time("watermark", newest).Msg("alerts dispatched")
	}
	for _, a := range feed[:sent] {
		metrics.AlertsDispatched.WithLabelValues(a.Severity).Inc()
	}
	return sent, errors.Join(errs...)
}

// newer returns the leading alerts of a time-descending feed that are
// after watermark.
func newer(feed []Alert, watermark time.Time) []Alert {
	for i, a := range feed {
		if !a.Time.After(watermark) {
			return feed[:i]
		}
	}
	return feed
}

func notifications(alerts []Alert) []notify.Notification {
	batch := make([]notify.Notification, 0, len(alerts))
	for _, a := range alerts {
		batch = append(batch, notify.Notification{
			Key:     a.Table,
			Text:    fmt.Sprintf("[%s] %s.%s %s: %s", a.Severity, a.Table, a.Column, a.Rule, a.Message),
			Payload: a,
		})
	}
	return batch
}
