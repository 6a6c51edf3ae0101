// Package report renders findings for the operator. The driver's
// contract is a typed, ordered finding sequence; everything about
// formatting lives here.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cellenum/pkg/core"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var (
	foundColor    = color.New(color.FgGreen)
	notFoundColor = color.New(color.FgYellow)
	deniedColor   = color.New(color.FgCyan)
	errColor      = color.New(color.FgRed)
)

// Reporter prints one line per finding. NOT_FOUND lines are suppressed
// unless verbose; errors and hits always surface.
type Reporter struct {
	log     *logrus.Logger
	verbose bool

	found  int
	denied int
	total  int
}

func New(log *logrus.Logger, verbose bool) *Reporter {
	return &Reporter{log: log, verbose: verbose}
}

// Report renders a single finding.
func (r *Reporter) Report(f core.Finding) {
	r.total++
	switch f.Verdict {
	case core.VerdictFound:
		r.found++
		foundColor.Printf("FOUND        %s -> HTTP %d\n", f.URL, f.StatusCode)
	case core.VerdictBucketDenied:
		r.denied++
		deniedColor.Printf("DENIED       %s -> HTTP %d (bucket exists)\n", f.URL, f.StatusCode)
	case core.VerdictNotFound:
		if r.verbose {
			notFoundColor.Printf("NOT FOUND    %s -> HTTP %d\n", f.URL, f.StatusCode)
		}
	case core.VerdictTransientError:
		errColor.Printf("UNRESOLVED   %s (retries exhausted)\n", f.URL)
	case core.VerdictFatalError:
		errColor.Printf("FATAL        %s\n", f.URL)
	}
}

// Summary prints run totals.
func (r *Reporter) Summary(elapsed time.Duration) {
	r.log.Infof("probed %d candidates in %s: %d found, %d denied buckets",
		r.total, elapsed.Round(time.Millisecond), r.found, r.denied)
}

// WriteJSON dumps the full finding sequence, NOT_FOUND included, to a
// file for later analysis.
func WriteJSON(path string, findings []core.Finding) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(findings); err != nil {
		return fmt.Errorf("write results file: %w", err)
	}
	return nil
}
