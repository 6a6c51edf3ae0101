package core

import "time"

// Transport issues a single HTTP(S) GET and reports the outcome as
// data. Implementations never panic or return errors past this
// boundary: every failure, link-level included, is encoded in the
// TransportResult so the classifier stays total.
//
// Implementations are sequential by contract. The modem command
// channel is half-duplex; two in-flight requests would desynchronize
// session state.
type Transport interface {
	Request(target Target, timeout time.Duration) TransportResult
}
