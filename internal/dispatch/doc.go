// Package dispatch runs campaign sweeps.
//
// A sweep reconciles the contact store against send status: every contact
// still marked unsent gets exactly one send attempt, strictly sequentially
// through the single stateful session. Failures are isolated per contact
// and collected; they never abort the sweep. Attempts are paced by a rate
// limiter so the transport is never hit faster than one send per
// configured delay. Successful contacts are persisted as sent, making a
// re-triggered sweep idempotent.
package dispatch
