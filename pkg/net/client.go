package net

import (
	"errors"
	"time"

	"cellenum/pkg/core"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const bodyExcerptLimit = 200

// Client serves the Transport contract over the OS network stack with
// fasthttp. It exists for modem-less runs: validating wordlists and
// comparing verdicts against the cellular path.
type Client struct {
	client *fasthttp.Client
	log    *logrus.Logger
}

func NewClient(log *logrus.Logger) *Client {
	return &Client{
		client: &fasthttp.Client{
			MaxConnsPerHost:          4,
			NoDefaultUserAgentHeader: true,
		},
		log: log,
	}
}

// Request implements core.Transport. Network failures never abort the
// run from here: unlike the modem path there is no shared session
// state to corrupt, so everything short of success is retryable data.
func (c *Client) Request(target core.Target, timeout time.Duration) core.TransportResult {
	start := time.Now()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target.URL)
	req.Header.SetMethod(fasthttp.MethodGet)

	err := c.client.DoTimeout(req, resp, timeout)
	if err != nil {
		raw := "connect:" + err.Error()
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
			raw = "timeout"
		}
		c.log.Debugf("[direct] %s failed: %s", target.URL, raw)
		return core.TransportResult{Elapsed: time.Since(start), RawError: raw}
	}

	status := resp.StatusCode()
	if status < 100 || status > 599 {
		return core.TransportResult{Elapsed: time.Since(start), RawError: "malformed_status"}
	}

	body := resp.Body()
	if len(body) > bodyExcerptLimit {
		body = body[:bodyExcerptLimit]
	}
	// Copy the excerpt; ReleaseResponse recycles the buffer.
	excerpt := string(body)

	c.log.Debugf("[direct] %s -> %d", target.URL, status)
	return core.TransportResult{
		StatusCode:  status,
		BodyExcerpt: excerpt,
		Elapsed:     time.Since(start),
	}
}
