package smtptest

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog/log"
)

// doubtful we'll get an email this big, but we need a limit
const maxEmailSize int64 = 100 * units.MiB

// Received is one message as the relay saw it, envelope included
type Received struct {
	Created    time.Time
	From       string
	Recipients []string
	Body       string
}

// Backend implements smtp.Backend. Every connection gets its own session
// that records into a shared InMemoryEmailStore.
type Backend struct {
	*InMemoryEmailStore
}

// Login implements smtp.Backend. The server runs with AuthDisabled, so this
// only exists to satisfy the interface.
func (be *Backend) Login(_ *smtp.ConnectionState, _ string, _ string) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

// AnonymousLogin implements smtp.Backend. The mailer never authenticates,
// so this is how sessions normally start.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return &session{store: be.InMemoryEmailStore}, nil
}

// session implements smtp.Session for a single connection
type session struct {
	store *InMemoryEmailStore
	from  string
	rcpts []string
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session. Refuses any address the store was told to
// reject.
func (s *session) Rcpt(to string) error {
	if s.store.rejects(to) {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "no such mailbox here",
		}
	}
	s.rcpts = append(s.rcpts, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for
// retrieval at the end of the test.
func (s *session) Data(r io.Reader) error {
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	str := &strings.Builder{}
	if _, err := str.Write(buf); err != nil {
		return err
	}
	s.store.saveEmail(Received{
		From:       s.from,
		Recipients: append([]string(nil), s.rcpts...),
		Body:       str.String(),
	})
	return nil
}

// InMemoryEmailStore retains email bodies in memory for comparison against
// a test's expected output. Designed to be goroutine safe since we don't
// know how many goroutines will be hitting the server at once.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []Received
	rejected map[string]struct{}
}

// Reject makes the server refuse RCPT for addr with a 550
func (es *InMemoryEmailStore) Reject(addr string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.rejected[strings.ToLower(addr)] = struct{}{}
}

func (es *InMemoryEmailStore) rejects(addr string) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	_, ok := es.rejected[strings.ToLower(addr)]
	return ok
}

// saveEmail stores the message along with a timestamp created just prior to
// saving
func (es *InMemoryEmailStore) saveEmail(m Received) {
	es.mu.Lock()
	defer es.mu.Unlock()

	m.Created = time.Now()
	es.messages = append(es.messages, m)
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// sent after epoch nanoseconds t
// Satisfies smtptest.Server but isn't expected to return an error.
func (es *InMemoryEmailStore) RetrieveEmails(t int64) ([]string, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]string, 0, len(es.messages))
	for _, m := range es.messages {
		if m.Created.UnixNano() >= t {
			r = append(r, m.Body)
		}
	}
	return r, nil
}

// Received returns every message the server has accepted, oldest first
func (es *InMemoryEmailStore) Received() []Received {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]Received(nil), es.messages...)
}

var _ Server = &InProcessServer{}

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, letting us inspect sent emails. You must initialize this
// via NewInProcessServer
type InProcessServer struct {
	*smtp.Server
	*InMemoryEmailStore
	listener net.Listener
}

// NewInProcessServer creates an InProcessServer listening on a free loopback
// port, including configuring its SMTP server to store incoming messages in
// memory. If keypath and certpath are non-empty, the server offers STARTTLS
// with that key pair.
func NewInProcessServer(keypath string, certpath string) (*InProcessServer, error) {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []Received{},
		rejected: map[string]struct{}{},
	}

	srv := smtp.NewServer(&Backend{
		is,
	})

	srv.Domain = "localhost"
	srv.AuthDisabled = true
	srv.MaxMessageBytes = int(maxEmailSize)
	srv.ReadTimeout = time.Duration(10) * time.Second
	srv.WriteTimeout = time.Duration(10) * time.Second
	// Strict is undocumented, but it looks like it enforces <address> syntax
	// in messages:
	// https://github.com/emersion/go-smtp/blob/f92bf7f1a25777bcdaa28a142b1cd1a54b74c8f4/conn.go#L321-L325
	srv.Strict = true

	if keypath != "" && certpath != "" {
		cert, err := tls.LoadX509KeyPair(certpath, keypath)
		if err != nil {
			return nil, fmt.Errorf("can't load the test server's key pair: %v", err)
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	// Port 0 so parallel tests don't fight over a fixed port
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("can't listen for the test server: %v", err)
	}

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		listener:           l,
	}, nil
}

// Start serves on the server's listener. Blocking.
func (is *InProcessServer) Start() error {
	// Not using ListenAndServeTLS--the client should upgrade the connection
	// to TLS
	return is.Server.Serve(is.listener)
}

// Close shuts down the test server daemon. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	if err := is.Server.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing the test SMTP server")
	}
	// Serve may not have registered the listener yet
	is.listener.Close()
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}
