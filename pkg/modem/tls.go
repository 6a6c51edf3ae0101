package modem

import (
	"fmt"
	"strings"
	"time"
)

// TLSConfigurer prepares the modem for HTTPS targets. The handshake
// itself runs inside the modem firmware; which commands arm it is
// vendor-specific, so the transport takes this as a capability rather
// than hard-coding one command set.
type TLSConfigurer interface {
	Configure(s *Session) error
}

// QuectelTLS arms the SSL context used by Quectel's HTTP(S) AT stack
// (EG91 and friends). Certificate validation is disabled: the probe
// only cares whether an object answers, not who signed the cert.
type QuectelTLS struct {
	ContextID int
}

func (q QuectelTLS) Configure(s *Session) error {
	ctx := q.ContextID
	if ctx == 0 {
		ctx = 1
	}
	cmds := []string{
		fmt.Sprintf(`AT+QHTTPCFG="sslctxid",%d`, ctx),
		fmt.Sprintf(`AT+QSSLCFG="sslversion",%d,4`, ctx),
		fmt.Sprintf(`AT+QSSLCFG="ciphersuite",%d,0xFFFF`, ctx),
		fmt.Sprintf(`AT+QSSLCFG="seclevel",%d,0`, ctx),
	}
	for _, cmd := range cmds {
		resp, err := s.Command(cmd, "OK", 5*time.Second)
		if err != nil {
			return fmt.Errorf("tls setup: %w", err)
		}
		if !strings.Contains(resp, "OK") {
			return fmt.Errorf("tls setup: %q rejected", cmd)
		}
	}
	return nil
}
