package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Start runs the health-check loop every HealthInterval until Stop, Destroy or
// ctx cancellation. Calling Start twice restarts the loop.
func (r *Registry) Start(ctx context.Context) {
	r.Stop()

	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.opts.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CheckHealth(ctx)
			}
		}
	}()
	r.logger.Debug("health loop started", "interval", r.opts.HealthInterval)
}

// Stop halts the health-check loop and waits for it to exit.
func (r *Registry) Stop() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}

// CheckHealth runs one health pass. Registrations whose strategy implements
// strategy.HealthChecker adopt its verdict; a failing or panicking check marks the
// strategy unhealthy. Unhealthy registrations older than ReprobeAfter are put on
// probation with their counters reset.
func (r *Registry) CheckHealth(ctx context.Context) {
	r.mu.RLock()
	targets := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		targets = append(targets, e)
	}
	r.mu.RUnlock()

	for _, e := range targets {
		if ctx.Err() != nil {
			return
		}
		r.reprobe(e)

		hc, ok := e.Strategy.(strategy.HealthChecker)
		if !ok {
			continue
		}
		report, err := r.runCheck(ctx, hc)
		r.applyVerdict(e, report, err)
	}
}

func (r *Registry) runCheck(ctx context.Context, hc strategy.HealthChecker) (report strategy.HealthReport, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.CheckTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("health check panicked: %v", p)
		}
	}()
	return hc.HealthCheck(ctx)
}

func (r *Registry) applyVerdict(e *entry, report strategy.HealthReport, err error) {
	var changed *events.HealthChanged

	r.mu.Lock()
	if r.entries[e.Name] != e {
		r.mu.Unlock()
		return
	}
	switch {
	case err != nil || !report.Healthy:
		reason := "health check reported unhealthy"
		if err != nil {
			reason = err.Error()
		} else if len(report.Issues) > 0 {
			reason = report.Issues[0]
		}
		if e.Healthy {
			r.markUnhealthy(e, sourceHealthCheck, reason)
			changed = &events.HealthChanged{Strategy: e.Name, Healthy: false, Reason: reason}
		}
	case !e.Healthy && e.source == sourceHealthCheck:
		e.Healthy = true
		e.UnhealthySince = time.Time{}
		e.source = sourceNone
		e.Issues = nil
		changed = &events.HealthChanged{Strategy: e.Name, Healthy: true, Reason: "health check passed"}
		r.logger.Info("strategy recovered", "strategy", e.Name)
	}
	r.mu.Unlock()

	if changed != nil {
		r.publish(*changed)
	}
}

// reprobe restores eligibility of a registration that has been unhealthy for at
// least ReprobeAfter. Counters are reset so the threshold is evaluated afresh.
func (r *Registry) reprobe(e *entry) {
	r.mu.Lock()
	if r.entries[e.Name] != e || e.Healthy || r.opts.Now().Sub(e.UnhealthySince) < r.opts.ReprobeAfter {
		r.mu.Unlock()
		return
	}
	e.Healthy = true
	e.UsageCount = 0
	e.ErrorCount = 0
	e.UnhealthySince = time.Time{}
	e.source = sourceNone
	e.Issues = nil
	e.Probations++
	probations := e.Probations
	r.mu.Unlock()

	r.logger.Info("strategy on probation", "strategy", e.Name, "probations", probations)
	r.publish(events.HealthChanged{Strategy: e.Name, Healthy: true, Reason: "re-probe window elapsed"})
}
