// Package classify maps transport results onto enumeration verdicts.
// It is a pure, total function over its inputs: no I/O, no state, so
// the policy is testable without any serial hardware.
package classify

import (
	"strings"

	"cellenum/pkg/core"
)

// Classify turns one transport result into a verdict for the candidate
// that produced it.
//
// S3 quirk encoded deliberately: 403 on a bucket-root probe means the
// bucket exists but denies anonymous access, while 403 on an object
// probe usually means "bucket exists, object does not" and is reported
// as NOT_FOUND.
func Classify(res core.TransportResult, c core.Candidate) core.Verdict {
	if res.StatusCode == 0 {
		if strings.HasPrefix(res.RawError, "link:") {
			return core.VerdictFatalError
		}
		// timeout, modem_error, malformed_* and anything else without
		// a status is retryable.
		return core.VerdictTransientError
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode <= 299:
		return core.VerdictFound
	case res.StatusCode == 403:
		if c.BucketProbe() {
			return core.VerdictBucketDenied
		}
		return core.VerdictNotFound
	case res.StatusCode == 404:
		return core.VerdictNotFound
	default:
		// 3xx/5xx: server-side or redirect conditions, retried bounded
		// by the driver's policy.
		return core.VerdictTransientError
	}
}
