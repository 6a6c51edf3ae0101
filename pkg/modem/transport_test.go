package modem

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"cellenum/pkg/core"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort scripts the modem side of the dialogue: once the bytes
// written since the last match contain a step's expect string, that
// step's reply becomes readable.
type fakePort struct {
	steps    []step
	pending  []byte
	wrote    []byte
	writeErr error
	readErr  error
	closed   bool
}

type step struct {
	expect string
	reply  string
}

func newFakePort(preload string, steps ...step) *fakePort {
	return &fakePort{pending: []byte(preload), steps: steps}
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.wrote = append(p.wrote, b...)
	for len(p.steps) > 0 && bytes.Contains(p.wrote, []byte(p.steps[0].expect)) {
		p.pending = append(p.pending, p.steps[0].reply...)
		p.wrote = nil
		p.steps = p.steps[1:]
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.pending) == 0 {
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (p *fakePort) Close() error                       { p.closed = true; return nil }

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// noTLS skips SSL arming so HTTPS tests don't need the QSSLCFG
// dialogue scripted.
type noTLS struct{}

func (noTLS) Configure(*Session) error { return nil }

func httpTarget() core.Target {
	return core.Target{URL: "http://alpha.s3.amazonaws.com/config.json", Host: "alpha.s3.amazonaws.com"}
}

func getSteps(urc string) []step {
	return []step{
		{"AT+QHTTPURL", "CONNECT\r\n"},
		{"alpha.s3.amazonaws.com", "OK\r\n"},
		{"AT+QHTTPGET", "OK\r\n" + urc},
		{"AT+QHTTPREAD", "CONNECT\r\n<ListBucketResult/>\r\nOK\r\n"},
	}
}

func TestTransport_SuccessfulGet(t *testing.T) {
	port := newFakePort("", getSteps("+QHTTPGET: 0,200,1532\r\n")...)
	tr := NewTransport(NewSession(port, quietLog()), noTLS{}, quietLog())

	res := tr.Request(httpTarget(), 2*time.Second)
	assert.Empty(t, res.RawError)
	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, res.BodyExcerpt, "ListBucketResult")
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestTransport_HTTPErrorStatusPassedThrough(t *testing.T) {
	port := newFakePort("", getSteps("+QHTTPGET: 0,404\r\n")...)
	tr := NewTransport(NewSession(port, quietLog()), noTLS{}, quietLog())

	res := tr.Request(httpTarget(), 2*time.Second)
	assert.Empty(t, res.RawError)
	assert.Equal(t, 404, res.StatusCode)
}

func TestTransport_ModemInternalError(t *testing.T) {
	port := newFakePort("", getSteps("+QHTTPGET: 703\r\n")...)
	tr := NewTransport(NewSession(port, quietLog()), noTLS{}, quietLog())

	res := tr.Request(httpTarget(), 2*time.Second)
	assert.Equal(t, "modem_error:703", res.RawError)
	assert.Zero(t, res.StatusCode)
}

func TestTransport_MalformedStatus(t *testing.T) {
	port := newFakePort("", getSteps("+QHTTPGET: 0,777\r\n")...)
	tr := NewTransport(NewSession(port, quietLog()), noTLS{}, quietLog())

	res := tr.Request(httpTarget(), 2*time.Second)
	assert.Equal(t, "malformed_status", res.RawError)
	assert.Zero(t, res.StatusCode)
}

func TestTransport_ResultURCTimeout(t *testing.T) {
	// GET is accepted but the completion URC never arrives.
	port := newFakePort("",
		step{"AT+QHTTPURL", "CONNECT\r\n"},
		step{"alpha.s3.amazonaws.com", "OK\r\n"},
		step{"AT+QHTTPGET", "OK\r\n"},
	)
	tr := NewTransport(NewSession(port, quietLog()), noTLS{}, quietLog())

	res := tr.Request(httpTarget(), 300*time.Millisecond)
	assert.Equal(t, "timeout", res.RawError)
	assert.Zero(t, res.StatusCode)
}

func TestTransport_LinkFailureOnWrite(t *testing.T) {
	port := newFakePort("")
	port.writeErr = errors.New("device gone")
	tr := NewTransport(NewSession(port, quietLog()), noTLS{}, quietLog())

	res := tr.Request(httpTarget(), time.Second)
	require.NotEmpty(t, res.RawError)
	assert.Contains(t, res.RawError, "link:")
	assert.Zero(t, res.StatusCode)
}

func TestTransport_LinkFailureOnRead(t *testing.T) {
	port := newFakePort("")
	port.readErr = errors.New("device gone")
	tr := NewTransport(NewSession(port, quietLog()), noTLS{}, quietLog())

	res := tr.Request(httpTarget(), time.Second)
	assert.Contains(t, res.RawError, "link:")
}

func TestTransport_TLSConfiguredOncePerSession(t *testing.T) {
	tlsSteps := []step{
		{`"sslctxid"`, "OK\r\n"},
		{`"sslversion"`, "OK\r\n"},
		{`"ciphersuite"`, "OK\r\n"},
		{`"seclevel"`, "OK\r\n"},
	}
	steps := append(tlsSteps, getSteps("+QHTTPGET: 0,200,10\r\n")...)
	steps = append(steps, getSteps("+QHTTPGET: 0,200,10\r\n")...)

	port := newFakePort("", steps...)
	session := NewSession(port, quietLog())
	tr := NewTransport(session, QuectelTLS{ContextID: 1}, quietLog())

	target := core.Target{URL: "https://alpha.s3.amazonaws.com/config.json", Host: "alpha.s3.amazonaws.com"}
	res := tr.Request(target, 2*time.Second)
	require.Empty(t, res.RawError)

	// The second request must not re-arm SSL: the next scripted step
	// is the QHTTPURL exchange.
	res = tr.Request(target, 2*time.Second)
	assert.Empty(t, res.RawError)
	assert.Equal(t, 200, res.StatusCode)
}

func TestRequestStateLadder(t *testing.T) {
	order := []requestState{reqIdle, reqURLConfigured, reqActionSent, reqAwaitingResult, reqComplete}
	for i := 0; i < len(order)-1; i++ {
		assert.Equal(t, order[i+1], advance[order[i]])
	}
	assert.Equal(t, "timed_out", reqTimedOut.String())
}
