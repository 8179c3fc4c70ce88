package smtptest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/flashmob/go-guerrilla/tests/testcert"
	"github.com/rs/zerolog/log"
)

// GenerateTLSFiles writes a TLS key and certificate to a temporary test
// directory that is removed after the test suite runs. It returns the file
// paths of the key and certificate. The certificate is a root cert.
func GenerateTLSFiles(t *testing.T) (keyPath string, certPath string, err error) {
	host := "127.0.0.1"
	// testcert concatenates the prefix and the host name, so the prefix
	// needs its own trailing separator
	d := t.TempDir() + string(filepath.Separator)
	err = testcert.GenerateCert(
		host,
		"",                         // defaults to now
		time.Duration(1)*time.Hour, // the test suite won't run for this long
		true,                       // is a CA cert
		2048,                       // usually seen in online tutorials
		"",                         // using the default ecdsa curve,
		d,
	)

	if err != nil {
		return
	}

	// These path names are hardcoded into testcert.GenerateCert
	keyPath = d + host + ".key.pem"
	certPath = d + host + ".cert.pem"

	return
}

// StartServer launches an InProcessServer for the duration of t. Pass
// withTLS to have the server offer STARTTLS.
func StartServer(t *testing.T, withTLS bool) *InProcessServer {
	t.Helper()

	var k, c string
	if withTLS {
		var err error
		k, c, err = GenerateTLSFiles(t)
		if err != nil {
			t.Fatalf("can't generate TLS files for the test server: %v", err)
		}
	}

	srv, err := NewInProcessServer(k, c)
	if err != nil {
		t.Fatal(err)
	}

	run(t, srv)
	return srv
}

// run serves srv in the background until t finishes
func run(t *testing.T, srv Server) {
	go func() {
		if err := srv.Start(); err != nil {
			log.Debug().Err(err).Str("address", srv.Address()).Msg("test SMTP server stopped")
		}
	}()
	t.Cleanup(srv.Close)
}
