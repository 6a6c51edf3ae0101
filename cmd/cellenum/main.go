package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cellenum/pkg/config"
	"cellenum/pkg/core"
	"cellenum/pkg/engine"
	"cellenum/pkg/generate"
	"cellenum/pkg/modem"
	cellnet "cellenum/pkg/net"
	"cellenum/pkg/report"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var (
	bucketNames string
	wordlist    string
	extensions  []string
	resumeRun   string
	offsetFlag  int
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "cellenum",
	Short: "S3 object enumeration through a cellular modem's AT interface",
	Long: `cellenum probes public S3 bucket objects by issuing HTTPS GETs
through a Quectel-style cellular module over a serial link, so the
enumeration traffic egresses via the mobile carrier instead of a
conventional IP path.

Without --wordlist it runs a bucket-existence sweep (one root probe per
bucket); with one, it walks buckets x objects x extensions in a fixed,
resumable order.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&bucketNames, "bucketnames", "", "Single bucket name or file with bucket names")
	f.StringVar(&wordlist, "wordlist", "", "File with base object names to try (omit for bucket sweep)")
	f.StringSliceVar(&extensions, "extensions", nil, "File extensions to append, no leading dot (e.g. txt,json)")
	f.String("s3-endpoint", "s3.amazonaws.com", "S3 endpoint host")
	f.String("serial-port", "/dev/ttyUSB0", "Modem serial device")
	f.Int("baudrate", 115200, "Serial baud rate")
	f.Bool("assume-on", false, "Skip the RDY power-on handshake")
	f.Bool("direct", false, "Probe over the OS network stack instead of the modem")
	f.Bool("verbose", false, "Debug logging incl. AT wire traffic and NOT_FOUND lines")
	f.Int("max-retries", 2, "Retries per candidate on transient errors")
	f.Duration("base-delay", 500*time.Millisecond, "Base retry backoff")
	f.Duration("max-delay", 8*time.Second, "Backoff ceiling")
	f.Duration("min-interval", time.Second, "Minimum interval between requests")
	f.Duration("timeout", 30*time.Second, "Overall per-request timeout")
	f.String("db", "", "SQLite file to persist findings (enables --resume)")
	f.String("output", "", "Write the full finding sequence as JSON to this file")
	f.StringVar(&resumeRun, "resume", "", "Resume a persisted run by ID (requires --db)")
	f.IntVar(&offsetFlag, "offset", 0, "Start from this candidate index")

	rootCmd.MarkFlagRequired("bucketnames")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	buckets, err := loadBuckets(bucketNames)
	if err != nil {
		return err
	}
	var objects []string
	if wordlist != "" {
		objects, err = loadLines(wordlist)
		if err != nil {
			return err
		}
	}

	gen := generate.New(buckets, objects, extensions)
	if gen.BucketSweep() {
		log.Infof("bucket sweep: %d candidates against %s", gen.Len(), cfg.Endpoint)
	} else {
		log.Infof("object sweep: %d candidates against %s", gen.Len(), cfg.Endpoint)
	}

	offset := offsetFlag
	var store *engine.Store
	var runID string
	if cfg.DatabasePath != "" {
		store, err = engine.OpenStore(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		if resumeRun != "" {
			endpoint, err := store.RunEndpoint(resumeRun)
			if err != nil {
				return err
			}
			if endpoint != cfg.Endpoint {
				return fmt.Errorf("run %s was recorded against %s, not %s", resumeRun, endpoint, cfg.Endpoint)
			}
			offset, err = store.ResumeOffset(resumeRun)
			if err != nil {
				return err
			}
			runID = resumeRun
			log.Infof("resuming run %s at candidate %d", runID, offset)
		} else {
			runID, err = store.BeginRun(cfg.Endpoint)
			if err != nil {
				return err
			}
			log.Infof("recording findings under run %s", runID)
		}
	} else if resumeRun != "" {
		return fmt.Errorf("--resume requires --db")
	}
	gen.Seek(offset)

	transport, teardown, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	defer teardown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("interrupted, finishing current probe")
		cancel()
	}()

	reporter := report.New(log, cfg.Verbose)
	sinks := []func(core.Finding){reporter.Report}
	if store != nil {
		seq := offset
		sinks = append(sinks, func(f core.Finding) {
			if err := store.SaveFinding(runID, seq, f); err != nil {
				log.Errorf("persist finding: %v", err)
			}
			seq++
		})
	}

	driver := engine.NewDriver(transport, gen, cfg.Endpoint, cfg.Policy(), log, sinks...)
	start := time.Now()
	findings, runErr := driver.Run(ctx)
	reporter.Summary(time.Since(start))

	if cfg.OutputPath != "" {
		if err := report.WriteJSON(cfg.OutputPath, findings); err != nil {
			log.Errorf("%v", err)
		} else {
			log.Infof("results saved to %s", cfg.OutputPath)
		}
	}

	if runErr != nil {
		return runErr
	}
	return nil
}

// buildTransport opens either the modem path or the direct fasthttp
// path, returning the teardown to run when the enumeration ends.
func buildTransport(cfg *core.Config) (core.Transport, func(), error) {
	if cfg.Direct {
		return cellnet.NewClient(log), func() {}, nil
	}

	port, err := serial.Open(cfg.SerialPort, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, nil, fmt.Errorf("open serial port %s: %w", cfg.SerialPort, err)
	}
	session := modem.NewSession(port, log)
	if !cfg.AssumeOn {
		if err := session.WaitReady(60 * time.Second); err != nil {
			session.Close()
			return nil, nil, err
		}
	}
	if err := session.ActivateDataContext(); err != nil {
		session.Close()
		return nil, nil, err
	}
	teardown := func() {
		if err := session.Deactivate(); err != nil {
			log.Warnf("%v", err)
		}
		session.Close()
	}
	return modem.NewTransport(session, modem.QuectelTLS{ContextID: 1}, log), teardown, nil
}

// loadBuckets accepts either a literal bucket name or a path to a file
// of names, one per line.
func loadBuckets(arg string) ([]string, error) {
	if _, err := os.Stat(arg); err == nil {
		return loadLines(arg)
	}
	name := strings.TrimSpace(arg)
	if name == "" {
		return nil, fmt.Errorf("empty bucket name")
	}
	return []string{name}, nil
}

func loadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read wordlist %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read wordlist %s: %w", path, err)
	}
	return lines, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
