package engine

import (
	"context"
	"fmt"
	"time"

	"cellenum/pkg/classify"
	"cellenum/pkg/core"
	"cellenum/pkg/generate"

	"github.com/sirupsen/logrus"
)

// Driver walks the candidate stream sequentially: one request in
// flight at any time, findings emitted in exactly generator order. It
// exclusively owns the transport (and through it the modem session)
// for the duration of the run.
type Driver struct {
	transport core.Transport
	gen       *generate.Generator
	endpoint  string
	policy    core.RetryPolicy
	log       *logrus.Logger
	sinks     []func(core.Finding)

	lastRequest time.Time
}

func NewDriver(transport core.Transport, gen *generate.Generator, endpoint string,
	policy core.RetryPolicy, log *logrus.Logger, sinks ...func(core.Finding)) *Driver {
	return &Driver{
		transport: transport,
		gen:       gen,
		endpoint:  endpoint,
		policy:    policy,
		log:       log,
		sinks:     sinks,
	}
}

// Run probes candidates until the generator is exhausted, the context
// is cancelled, or the transport reports a fatal link failure. The
// returned error is non-nil only for the fatal case; findings produced
// so far are always returned. Cancellation is honored between
// candidates only — an in-flight AT exchange cannot be interrupted
// without desynchronizing the modem.
func (d *Driver) Run(ctx context.Context) ([]core.Finding, error) {
	var findings []core.Finding
	for {
		select {
		case <-ctx.Done():
			d.log.Warnf("run cancelled after %d findings", len(findings))
			return findings, nil
		default:
		}

		cand, ok := d.gen.Next()
		if !ok {
			return findings, nil
		}
		target := core.BuildTarget(cand, d.endpoint)

		var res core.TransportResult
		var verdict core.Verdict
		for attempt := 0; ; attempt++ {
			d.pace()
			res = d.transport.Request(target, d.policy.RequestTimeout)
			verdict = classify.Classify(res, cand)

			if verdict == core.VerdictFatalError {
				return findings, fmt.Errorf("probing %s: modem link failure: %s", target.URL, res.RawError)
			}
			if verdict != core.VerdictTransientError || attempt >= d.policy.MaxRetries {
				break
			}
			delay := d.policy.Backoff(attempt)
			d.log.Warnf("transient failure on %s (%s), retry %d/%d in %s",
				target.URL, failureDetail(res), attempt+1, d.policy.MaxRetries, delay)
			time.Sleep(delay)
		}

		f := core.Finding{
			Candidate:   cand,
			URL:         target.URL,
			Verdict:     verdict,
			StatusCode:  res.StatusCode,
			BodyExcerpt: res.BodyExcerpt,
			Timestamp:   time.Now().UTC(),
		}
		findings = append(findings, f)
		for _, sink := range d.sinks {
			sink(f)
		}
	}
}

// pace enforces the unconditional minimum interval between requests,
// keeping the carrier happy.
func (d *Driver) pace() {
	if d.policy.MinInterval > 0 && !d.lastRequest.IsZero() {
		if wait := d.policy.MinInterval - time.Since(d.lastRequest); wait > 0 {
			time.Sleep(wait)
		}
	}
	d.lastRequest = time.Now()
}

func failureDetail(res core.TransportResult) string {
	if res.RawError != "" {
		return res.RawError
	}
	return fmt.Sprintf("status %d", res.StatusCode)
}
