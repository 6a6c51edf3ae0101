package core

import (
	"fmt"
	"net/url"
	"time"
)

// Candidate is one (bucket, object, extension) tuple to probe.
// An empty Object means a bucket-root probe (existence sweep).
type Candidate struct {
	Bucket    string `json:"bucket"`
	Object    string `json:"object,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// Key returns the object path for the candidate, extension applied.
func (c Candidate) Key() string {
	if c.Object == "" {
		return ""
	}
	if c.Extension == "" {
		return c.Object
	}
	return c.Object + "." + c.Extension
}

// BucketProbe reports whether the candidate targets the bucket root
// rather than a specific object.
func (c Candidate) BucketProbe() bool {
	return c.Object == ""
}

// Target is the resolved probe URL for a candidate.
type Target struct {
	URL  string
	Host string
}

// BuildTarget derives the virtual-hosted style S3 URL for a candidate:
// https://<bucket>.<endpoint>/<object>[.<extension>]
func BuildTarget(c Candidate, endpoint string) Target {
	host := c.Bucket + "." + endpoint
	u := "https://" + host + "/"
	if key := c.Key(); key != "" {
		u += url.PathEscape(key)
	}
	return Target{URL: u, Host: host}
}

// TransportResult is what a single request produced, success or not.
// StatusCode 0 means no HTTP status was obtained; RawError then names
// the failure class ("timeout", "modem_error:<n>", "malformed_status",
// "link:<detail>").
type TransportResult struct {
	StatusCode  int
	BodyExcerpt string
	Elapsed     time.Duration
	RawError    string
}

// Verdict is the enumeration outcome for one candidate.
type Verdict int

const (
	VerdictFound Verdict = iota
	VerdictNotFound
	VerdictBucketDenied
	VerdictTransientError
	VerdictFatalError
)

func (v Verdict) String() string {
	switch v {
	case VerdictFound:
		return "FOUND"
	case VerdictNotFound:
		return "NOT_FOUND"
	case VerdictBucketDenied:
		return "BUCKET_DENIED"
	case VerdictTransientError:
		return "TRANSIENT_ERROR"
	case VerdictFatalError:
		return "FATAL_ERROR"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// MarshalJSON emits the verdict name, not the enum value.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// Finding is the unit emitted per candidate. Append-only; never
// mutated after creation.
type Finding struct {
	Candidate   Candidate `json:"candidate"`
	URL         string    `json:"url"`
	Verdict     Verdict   `json:"verdict"`
	StatusCode  int       `json:"status,omitempty"`
	BodyExcerpt string    `json:"body,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// RetryPolicy tunes pacing and retry behavior of the enumeration
// driver. MinInterval is enforced before every request regardless of
// outcome; MaxRetries applies to TRANSIENT_ERROR verdicts only.
type RetryPolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MinInterval    time.Duration
	RequestTimeout time.Duration
}

// Backoff returns the delay before retry number attempt (0-based),
// exponential with a ceiling.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// Config holds the run configuration assembled by the CLI.
type Config struct {
	Endpoint   string `mapstructure:"endpoint"`
	SerialPort string `mapstructure:"serial_port"`
	BaudRate   int    `mapstructure:"baud_rate"`
	AssumeOn   bool   `mapstructure:"assume_on"`
	Direct     bool   `mapstructure:"direct"`
	Verbose    bool   `mapstructure:"verbose"`

	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	DatabasePath string `mapstructure:"database"`
	OutputPath   string `mapstructure:"output"`
}

// Policy extracts the retry policy from the config.
func (c Config) Policy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     c.MaxRetries,
		BaseDelay:      c.BaseDelay,
		MaxDelay:       c.MaxDelay,
		MinInterval:    c.MinInterval,
		RequestTimeout: c.RequestTimeout,
	}
}
