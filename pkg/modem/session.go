package modem

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Port is the serial link the session talks through. go.bug.st/serial
// ports satisfy it directly; tests substitute an in-memory fake.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(d time.Duration) error
	Close() error
}

// ErrWaitTimeout is returned when the modem did not produce the
// expected reply within the allowed window. It is not a link failure;
// the serial channel is still usable.
var ErrWaitTimeout = errors.New("timed out waiting for modem response")

const pollInterval = 50 * time.Millisecond

// Session owns the modem's command/response cycle. The channel is
// strictly half-duplex: at most one AT exchange is in flight at any
// time, and the session must not be shared across goroutines.
type Session struct {
	port Port
	log  *logrus.Logger

	buf []byte // unconsumed bytes between reads
	tmp [256]byte
}

func NewSession(port Port, log *logrus.Logger) *Session {
	return &Session{port: port, log: log}
}

// readLine returns the next CRLF-terminated line from the modem, or
// ErrWaitTimeout once the deadline passes. Serial I/O errors are link
// failures and come back wrapped.
func (s *Session) readLine(deadline time.Time) (string, error) {
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := strings.TrimRight(string(s.buf[:i]), "\r\n")
			s.buf = s.buf[i+1:]
			if line != "" {
				s.log.Debugf("[modem] << %s", line)
			}
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", ErrWaitTimeout
		}
		if err := s.port.SetReadTimeout(pollInterval); err != nil {
			return "", fmt.Errorf("serial read timeout: %w", err)
		}
		n, err := s.port.Read(s.tmp[:])
		if err != nil {
			return "", fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		s.buf = append(s.buf, s.tmp[:n]...)
	}
}

// Command writes an AT command and collects reply lines until one
// contains want or an ERROR, returning everything read. ErrWaitTimeout
// means want never arrived; the accumulated buffer is still returned
// so callers can inspect partial output.
func (s *Session) Command(cmd, want string, timeout time.Duration) (string, error) {
	s.log.Debugf("[modem] >> %s", cmd)
	if _, err := s.port.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("serial write: %w", err)
	}
	return s.Expect(want, timeout)
}

// Expect collects lines until one contains want or an ERROR.
func (s *Session) Expect(want string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var b strings.Builder
	for {
		line, err := s.readLine(deadline)
		if err != nil {
			return b.String(), err
		}
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if strings.Contains(line, want) || strings.Contains(line, "ERROR") {
			return b.String(), nil
		}
	}
}

// WriteRaw sends payload bytes without command framing (URL upload
// after a CONNECT prompt).
func (s *Session) WriteRaw(data []byte) error {
	if _, err := s.port.Write(data); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// AwaitURC waits for an unsolicited result code line starting with
// prefix and returns that line.
func (s *Session) AwaitURC(prefix string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		line, err := s.readLine(deadline)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(line, prefix) {
			return line, nil
		}
	}
}

// WaitReady blocks until the modem announces RDY after power-on,
// falling back to an AT ping when the URC never shows (module was
// already up when we attached).
func (s *Session) WaitReady(timeout time.Duration) error {
	s.log.Info("waiting for modem RDY")
	if _, err := s.AwaitURC("RDY", timeout); err == nil {
		s.log.Info("modem ready")
		return nil
	} else if !errors.Is(err, ErrWaitTimeout) {
		return err
	}
	s.log.Warn("RDY not seen, probing with AT")
	resp, err := s.Command("AT", "OK", timeout)
	if err != nil {
		return fmt.Errorf("modem not responsive: %w", err)
	}
	if !strings.Contains(resp, "OK") {
		return errors.New("modem not responsive: no OK to AT ping")
	}
	return nil
}

// ActivateDataContext brings up PDP context 1 and binds the modem's
// HTTP service to it. Activation on an already-active context reports
// ERROR, so a failed activate is rechecked with AT+QIACT?.
func (s *Session) ActivateDataContext() error {
	resp, err := s.Command("AT+QIACT=1", "OK", 30*time.Second)
	if err != nil {
		return fmt.Errorf("activate data context: %w", err)
	}
	if !strings.Contains(resp, "OK") {
		state, err := s.Command("AT+QIACT?", "OK", 5*time.Second)
		if err != nil {
			return fmt.Errorf("query data context: %w", err)
		}
		if !strings.Contains(state, "+QIACT: 1,1") {
			return errors.New("activate data context: context 1 not active")
		}
	}
	for _, cmd := range []string{
		`AT+QHTTPCFG="contextid",1`,
		`AT+QHTTPCFG="responseheader",0`,
	} {
		resp, err := s.Command(cmd, "OK", 5*time.Second)
		if err != nil {
			return fmt.Errorf("configure http service: %w", err)
		}
		if !strings.Contains(resp, "OK") {
			return fmt.Errorf("configure http service: %q rejected", cmd)
		}
	}
	return nil
}

// Deactivate tears the data context down. Called on normal completion,
// cancellation and fatal stop alike.
func (s *Session) Deactivate() error {
	_, err := s.Command("AT+QIDEACT=1", "OK", 40*time.Second)
	if err != nil && !errors.Is(err, ErrWaitTimeout) {
		return fmt.Errorf("deactivate data context: %w", err)
	}
	return nil
}

// Close releases the serial port.
func (s *Session) Close() error {
	return s.port.Close()
}
