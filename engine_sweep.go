package authcore

import "context"

// Sweep physically removes attempt windows whose retention lapsed. Pure
// housekeeping: expiry is evaluated on read, so correctness never depends on
// running it.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if e == nil {
		return SweepResult{}, ErrEngineNotReady
	}

	removed, err := e.limiter.PurgeExpired(ctx)
	if removed > 0 {
		e.metrics.Add(MetricSweepRemoved, uint64(removed))
	}
	if err != nil {
		return SweepResult{AttemptWindowsRemoved: removed}, err
	}

	e.emitAudit(ctx, auditSweep, true, "", "", nil, nil)
	return SweepResult{AttemptWindowsRemoved: removed}, nil
}
