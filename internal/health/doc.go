// Package health polls unit readiness checks.
//
// A Check is one of three kinds:
//
//   - tcp: ready once a TCP connection to Target succeeds
//   - http: ready once GET Target answers 2xx or 3xx (redirects are not followed)
//   - command: ready once Command exits with status zero
//
// A Prober retries a check up to MaxAttempts times, sleeping between
// attempts according to a Backoff policy (fixed or exponential). Every
// attempt has its own timeout. When the budget is exhausted the Result
// carries a *ProbeTimeoutError wrapping the last observed error.
//
// Probe never returns an error and never panics: readiness failures are
// data, not control flow. Callers inspect Result.Ready and Result.LastError.
//
// The sleep function is injectable so tests can run retry loops without
// waiting on wall-clock time.
package health
