package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog/log"
)

// Transport delivers a ComposedMessage. Deliver blocks until the message has
// been accepted or rejected.
type Transport interface {
	Deliver(m *ComposedMessage) error
}

// SMTPTransport delivers each message over a fresh SMTP session with a
// single relay. It keeps no connection between deliveries, so it's safe for
// concurrent use.
type SMTPTransport struct {
	host      string
	port      string
	helloName string
	startTLS  bool
	tlsConfig *tls.Config

	// dialTimeout bounds the TCP connect. sessionTimeout bounds everything
	// after it, DATA included.
	dialTimeout    time.Duration
	sessionTimeout time.Duration
}

// Address returns the relay's host:port
func (st *SMTPTransport) Address() string {
	return net.JoinHostPort(st.host, st.port)
}

// Deliver runs one SMTP session: EHLO, optional STARTTLS, MAIL, RCPT, DATA,
// QUIT. The connection is closed before Deliver returns. When STARTTLS is
// enabled, a relay that doesn't offer it gets nothing but EHLO and QUIT.
func (st *SMTPTransport) Deliver(m *ComposedMessage) error {
	addr := st.Address()

	conn, err := net.DialTimeout("tcp", addr, st.dialTimeout)
	if err != nil {
		return st.fail(err)
	}
	// go-smtp doesn't time out commands on its own
	if err := conn.SetDeadline(time.Now().Add(st.sessionTimeout)); err != nil {
		conn.Close()
		return st.fail(err)
	}

	c, err := smtp.NewClient(conn, st.host)
	if err != nil {
		conn.Close()
		return st.fail(err)
	}
	defer c.Close()
	log.Debug().Str("relay", addr).Msg("connected to the relay")

	if err := c.Hello(st.helloName); err != nil {
		return st.fail(err)
	}

	if st.startTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			if err := c.Quit(); err != nil {
				log.Warn().Err(err).Str("relay", addr).Msg("error ending the SMTP session")
			}
			return st.fail(ErrStartTLSUnsupported)
		}
		if err := c.StartTLS(st.tlsConfig); err != nil {
			return st.fail(fmt.Errorf("can't negotiate TLS: %w", err))
		}
		log.Debug().Str("relay", addr).Msg("upgraded the session to TLS")
	}

	if err := c.Mail(m.From.Address, nil); err != nil {
		return st.fail(err)
	}
	for _, r := range m.Recipients() {
		if err := c.Rcpt(r); err != nil {
			return st.fail(err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return st.fail(err)
	}
	if _, err := m.WriteTo(wc); err != nil {
		wc.Close()
		return st.fail(err)
	}
	// The relay's verdict on the message arrives when DATA is closed
	if err := wc.Close(); err != nil {
		return st.fail(err)
	}
	log.Debug().Str("relay", addr).Str("messageID", m.MessageID).Msg("relay accepted the message data")

	if err := c.Quit(); err != nil {
		// The message is already accepted at this point
		log.Warn().Err(err).Str("relay", addr).Msg("error ending the SMTP session")
	}
	return nil
}

// fail attaches the relay address and, when there is one, the SMTP reply
// code to err.
func (st *SMTPTransport) fail(err error) *DeliveryError {
	de := &DeliveryError{Relay: st.Address(), Err: err}

	var se *smtp.SMTPError
	var te *textproto.Error
	switch {
	case errors.As(err, &se):
		de.Code = se.Code
	case errors.As(err, &te):
		de.Code = te.Code
	}
	return de
}

// WriterTransport writes each message to an io.Writer instead of sending
// it. Useful for checking what a message looks like without a relay.
type WriterTransport struct {
	W io.Writer
}

// Deliver implements Transport
func (wt *WriterTransport) Deliver(m *ComposedMessage) error {
	if wt.W == nil {
		return errors.New("no writer is available for the message output")
	}
	if _, err := m.WriteTo(wt.W); err != nil {
		return err
	}
	return nil
}
