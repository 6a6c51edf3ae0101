package modem

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cellenum/pkg/core"

	"github.com/sirupsen/logrus"
)

// requestState tracks where a single AT HTTP request stands. The
// protocol is a fixed ladder; modeling it explicitly keeps timeout and
// malformed-response handling exhaustive.
type requestState int

const (
	reqIdle requestState = iota
	reqURLConfigured
	reqActionSent
	reqAwaitingResult
	reqComplete
	reqTimedOut
)

func (s requestState) String() string {
	switch s {
	case reqIdle:
		return "idle"
	case reqURLConfigured:
		return "url_configured"
	case reqActionSent:
		return "action_sent"
	case reqAwaitingResult:
		return "awaiting_result"
	case reqComplete:
		return "complete"
	case reqTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// advance is the only legal way forward through the ladder.
var advance = map[requestState]requestState{
	reqIdle:           reqURLConfigured,
	reqURLConfigured:  reqActionSent,
	reqActionSent:     reqAwaitingResult,
	reqAwaitingResult: reqComplete,
}

// +QHTTPGET: <err>[,<status>[,<len>]]
var getResultRe = regexp.MustCompile(`\+QHTTPGET: (\d+)(?:,(\d+))?(?:,(\d+))?`)

const (
	urlInputTimeout  = 30 * time.Second
	actionTimeout    = 10 * time.Second
	readTimeout      = 15 * time.Second
	bodyExcerptLimit = 200
)

// Transport drives one HTTP(S) GET at a time through the modem's AT
// command set. It mutates shared session state (configured URL, SSL
// context) and is therefore sequential by contract.
type Transport struct {
	session *Session
	tls     TLSConfigurer
	tlsDone bool
	log     *logrus.Logger
}

func NewTransport(session *Session, tls TLSConfigurer, log *logrus.Logger) *Transport {
	return &Transport{session: session, tls: tls, log: log}
}

// Request implements core.Transport. The caller's timeout is the
// overall budget; each AT exchange step additionally enforces its own
// window. All failures come back as data in the result.
func (t *Transport) Request(target core.Target, timeout time.Duration) core.TransportResult {
	start := time.Now()
	deadline := start.Add(timeout)
	state := reqIdle

	fail := func(raw string) core.TransportResult {
		t.log.Debugf("[modem] request failed in state %s: %s", state, raw)
		return core.TransportResult{Elapsed: time.Since(start), RawError: raw}
	}

	if strings.HasPrefix(target.URL, "https://") && !t.tlsDone {
		if err := t.tls.Configure(t.session); err != nil {
			if errors.Is(err, ErrWaitTimeout) {
				return fail("timeout")
			}
			return fail("link:" + err.Error())
		}
		t.tlsDone = true
	}

	// Configure the URL: AT+QHTTPURL announces the length, the modem
	// answers CONNECT, then the raw URL goes down the wire.
	resp, err := t.session.Command(
		fmt.Sprintf("AT+QHTTPURL=%d,%d", len(target.URL), int(urlInputTimeout.Seconds())),
		"CONNECT", stepBudget(urlInputTimeout, deadline))
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return fail("timeout")
		}
		return fail("link:" + err.Error())
	}
	if !strings.Contains(resp, "CONNECT") {
		return fail("malformed_response")
	}
	if err := t.session.WriteRaw(append([]byte(target.URL), 0x1A)); err != nil {
		return fail("link:" + err.Error())
	}
	resp, err = t.session.Expect("OK", stepBudget(actionTimeout, deadline))
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return fail("timeout")
		}
		return fail("link:" + err.Error())
	}
	if !strings.Contains(resp, "OK") {
		return fail("malformed_response")
	}
	state = advance[state]

	// Issue the GET action.
	resp, err = t.session.Command(
		fmt.Sprintf("AT+QHTTPGET=%d", int(timeout.Seconds())),
		"OK", stepBudget(actionTimeout, deadline))
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return fail("timeout")
		}
		return fail("link:" + err.Error())
	}
	if !strings.Contains(resp, "OK") {
		return fail("malformed_response")
	}
	state = advance[state]

	// Await the completion URC.
	state = advance[state]
	urc, err := t.session.AwaitURC("+QHTTPGET:", stepBudget(timeout, deadline))
	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			state = reqTimedOut
			return fail("timeout")
		}
		return fail("link:" + err.Error())
	}

	m := getResultRe.FindStringSubmatch(urc)
	if m == nil {
		return fail("malformed_response")
	}
	modemErr, _ := strconv.Atoi(m[1])
	if modemErr != 0 {
		// Modem-internal HTTP client error, not an HTTP status.
		return fail("modem_error:" + m[1])
	}
	if m[2] == "" {
		return fail("malformed_response")
	}
	status, _ := strconv.Atoi(m[2])
	if status < 100 || status > 599 {
		return fail("malformed_status")
	}
	state = advance[state]

	// Fetch the body. A read hiccup does not invalidate the status we
	// already hold; only a dead link does.
	excerpt := ""
	body, err := t.session.Command(
		fmt.Sprintf("AT+QHTTPREAD=%d", int(readTimeout.Seconds())),
		"OK", stepBudget(readTimeout, deadline))
	if err != nil && !errors.Is(err, ErrWaitTimeout) {
		return fail("link:" + err.Error())
	}
	if err == nil {
		excerpt = bodyExcerpt(body)
	}

	t.log.Debugf("[modem] request %s -> %d (%s)", target.URL, status, state)
	return core.TransportResult{
		StatusCode:  status,
		BodyExcerpt: excerpt,
		Elapsed:     time.Since(start),
	}
}

// stepBudget clamps a step's own window to what remains of the overall
// request budget.
func stepBudget(step time.Duration, deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}
	if step < remaining {
		return step
	}
	return remaining
}

// bodyExcerpt strips AT framing from a QHTTPREAD reply and truncates
// what's left.
func bodyExcerpt(raw string) string {
	lines := strings.Split(raw, "\n")
	var kept []string
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "", line == "OK", line == "CONNECT":
		case strings.HasPrefix(line, "AT+QHTTPREAD"), strings.HasPrefix(line, "+QHTTPREAD:"):
		default:
			kept = append(kept, line)
		}
	}
	body := strings.Join(kept, "\n")
	if len(body) > bodyExcerptLimit {
		body = body[:bodyExcerptLimit]
	}
	return body
}
