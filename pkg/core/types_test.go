package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildTarget(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		endpoint  string
		wantURL   string
		wantHost  string
	}{
		{
			"object with extension",
			Candidate{Bucket: "alpha", Object: "config", Extension: "json"},
			"s3.us-east-1.amazonaws.com",
			"https://alpha.s3.us-east-1.amazonaws.com/config.json",
			"alpha.s3.us-east-1.amazonaws.com",
		},
		{
			"bare object",
			Candidate{Bucket: "alpha", Object: "backup"},
			"s3.amazonaws.com",
			"https://alpha.s3.amazonaws.com/backup",
			"alpha.s3.amazonaws.com",
		},
		{
			"bucket root probe",
			Candidate{Bucket: "alpha"},
			"s3.amazonaws.com",
			"https://alpha.s3.amazonaws.com/",
			"alpha.s3.amazonaws.com",
		},
		{
			"object needing escaping",
			Candidate{Bucket: "b", Object: "a b"},
			"s3.amazonaws.com",
			"https://b.s3.amazonaws.com/a%20b",
			"b.s3.amazonaws.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildTarget(tt.candidate, tt.endpoint)
			assert.Equal(t, tt.wantURL, got.URL)
			assert.Equal(t, tt.wantHost, got.Host)
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

	assert.Equal(t, 500*time.Millisecond, p.Backoff(0))
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 8*time.Second, p.Backoff(4))
	assert.Equal(t, 8*time.Second, p.Backoff(10))
	// shift overflow clamps to the ceiling too
	assert.Equal(t, 8*time.Second, p.Backoff(62))
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "FOUND", VerdictFound.String())
	assert.Equal(t, "NOT_FOUND", VerdictNotFound.String())
	assert.Equal(t, "BUCKET_DENIED", VerdictBucketDenied.String())
	assert.Equal(t, "TRANSIENT_ERROR", VerdictTransientError.String())
	assert.Equal(t, "FATAL_ERROR", VerdictFatalError.String())
}

func TestCandidate_Key(t *testing.T) {
	assert.Equal(t, "config.json", Candidate{Object: "config", Extension: "json"}.Key())
	assert.Equal(t, "config", Candidate{Object: "config"}.Key())
	assert.Equal(t, "", Candidate{}.Key())
}
