// Package tcp provides the module's only transport.Connecter
// implementation: a plain TCP dial with a connect timeout. Encryption is
// out of scope for this module; operators who need it terminate TLS at
// a sidecar or stunnel in front of the listener.
package tcp

import (
	"context"
	"net"
	"time"

	"github.com/gravitydb/hacomm/transport"
)

// DefaultConnectTimeout matches the pool's own create() timeout; it is
// applied here too so that a Connecter used outside the pool still
// bounds its dial.
const DefaultConnectTimeout = 5 * time.Second

// Connecter dials a TCP connection to Address.
type Connecter struct {
	Address string
	dialer  net.Dialer
}

// NewConnecter returns a Connecter that dials address, bounding each
// connect attempt by timeout (DefaultConnectTimeout if zero).
func NewConnecter(address string, timeout time.Duration) *Connecter {
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	return &Connecter{
		Address: address,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

var _ transport.Connecter = (*Connecter)(nil)

func (c *Connecter) Connect(ctx context.Context) (transport.Wire, error) {
	log := transport.GetLogger(ctx).WithField("address", c.Address)
	conn, err := c.dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		log.WithError(err).Debug("tcp: dial failed")
		return nil, err
	}
	log.Debug("tcp: dial succeeded")
	return conn, nil
}
