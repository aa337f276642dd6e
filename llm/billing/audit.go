package billing

import "sync/atomic"

// Audit tracks call outcomes so operators can reconcile against the proxy's
// own ledger. Counters only ever increase.
type Audit struct {
	billed               atomic.Int64
	unbilledCompletion   atomic.Int64
	unbilledCancellation atomic.Int64
	bypass               atomic.Int64
}

// AuditSnapshot is a point-in-time copy of the counters.
type AuditSnapshot struct {
	Billed               int64
	UnbilledCompletion   int64
	UnbilledCancellation int64
	Bypass               int64
}

func (a *Audit) Snapshot() AuditSnapshot {
	return AuditSnapshot{
		Billed:               a.billed.Load(),
		UnbilledCompletion:   a.unbilledCompletion.Load(),
		UnbilledCancellation: a.unbilledCancellation.Load(),
		Bypass:               a.bypass.Load(),
	}
}

var defaultAudit Audit

// DefaultAudit is the process-wide counter set used when no explicit Audit is
// supplied.
func DefaultAudit() *Audit { return &defaultAudit }
