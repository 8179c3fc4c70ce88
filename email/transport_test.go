package email

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ptgott/one-mailer/smtptest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mailerFor builds a Mailer that sends to srv over SMTP
func mailerFor(t *testing.T, addr string, startTLS bool) *Mailer {
	t.Helper()
	h, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	uc := UserConfig{
		RelayHost:            h,
		RelayPort:            p,
		StartTLS:             startTLS,
		SkipCertVerification: true, // since it's a self-signed cert
		DialTimeout:          time.Duration(5) * time.Second,
	}
	c, err := uc.CheckAndSetDefaults()
	require.NoError(t, err)
	return c.NewMailer(nil)
}

// TestSendOverSMTP sends every shape to an in-process relay and checks what
// arrived.
func TestSendOverSMTP(t *testing.T) {
	for _, withTLS := range []bool{false, true} {
		name := "plaintext"
		if withTLS {
			name = "starttls"
		}
		t.Run(name, func(t *testing.T) {
			srv := smtptest.StartServer(t, withTLS)
			ml := mailerFor(t, srv.Address(), withTLS)

			require.NoError(t, ml.SendSimple(toAddress, fromAddress, msgTextPlain))
			require.NoError(t, ml.SendHTMLOnly(toAddress, fromAddress, msgHTML))
			require.NoError(t, ml.SendAlternative(toAddress, fromAddress, msgTextPlain, msgHTML))

			got := srv.Received()
			require.Len(t, got, 3)
			for _, r := range got {
				assert.Equal(t, fromAddress, r.From)
				assert.Equal(t, []string{toAddress}, r.Recipients)
			}

			simple, err := smtptest.ParseMessage(got[0].Body)
			require.NoError(t, err)
			assert.Equal(t, ContentTypeText, simple.Root.ContentType)
			// SMTP DATA always ends on a line break
			assert.Equal(t, msgTextPlain, strings.TrimSuffix(string(simple.Root.Body), "\r\n"))

			html, err := smtptest.ParseMessage(got[1].Body)
			require.NoError(t, err)
			assert.Equal(t, ContentTypeHTML, html.Root.ContentType)
			assert.Equal(t, msgHTML, strings.TrimSuffix(string(html.Root.Body), "\r\n"))

			alt, err := smtptest.ParseMessage(got[2].Body)
			require.NoError(t, err)
			require.Len(t, alt.Root.Parts, 2)
			assert.Equal(t, msgTextPlain, string(alt.Root.Parts[0].Body))
			assert.Equal(t, msgHTML, string(alt.Root.Parts[1].Body))
		})
	}
}

// With STARTTLS enabled, a relay that can't upgrade the session never gets
// the message
func TestStartTLSRequired(t *testing.T) {
	srv := smtptest.StartServer(t, false)
	ml := mailerFor(t, srv.Address(), true)

	err := ml.SendSimple(toAddress, fromAddress, msgTextPlain)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrStartTLSUnsupported)
	assert.Equal(t, srv.Address(), de.Relay)
	assert.Empty(t, srv.Received())
}

func TestSendAttachmentsOverSMTP(t *testing.T) {
	srv := smtptest.StartServer(t, false)
	ml := mailerFor(t, srv.Address(), false)

	f1 := []byte("12345")
	f2 := []byte("<html>thirty bytes of html</a>")

	err := ml.SendAlternativeWithAttachments(toAddress, fromAddress, msgTextPlain, msgHTML, []Attachment{
		{FileName: "f1.txt", Content: bytes.NewReader(f1)},
		{FileName: "f2.html", Content: bytes.NewReader(f2)},
	})
	require.NoError(t, err)

	b, err := srv.RetrieveEmails(0)
	require.NoError(t, err)
	require.Len(t, b, 1)

	m, err := smtptest.ParseMessage(b[0])
	require.NoError(t, err)
	require.Len(t, m.Root.Parts, 3)

	alt := m.Root.Parts[0]
	require.Len(t, alt.Parts, 2)
	assert.Equal(t, msgTextPlain, string(alt.Parts[0].Body))
	assert.Equal(t, msgHTML, string(alt.Parts[1].Body))

	assert.Equal(t, "f1.txt", m.Root.Parts[1].FileName)
	assert.Len(t, m.Root.Parts[1].Body, 5)
	assert.Equal(t, f1, m.Root.Parts[1].Body)
	assert.Equal(t, "f2.html", m.Root.Parts[2].FileName)
	assert.Len(t, m.Root.Parts[2].Body, 30)
	assert.Equal(t, f2, m.Root.Parts[2].Body)
}

func TestRejectedRecipient(t *testing.T) {
	srv := smtptest.StartServer(t, false)
	srv.Reject(toAddress)
	ml := mailerFor(t, srv.Address(), false)

	err := ml.SendSimple(toAddress, fromAddress, msgTextPlain)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 550, de.Code)
	assert.Equal(t, srv.Address(), de.Relay)
	assert.Contains(t, err.Error(), "no such mailbox here")

	b, err := srv.RetrieveEmails(0)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestConnectionRefused(t *testing.T) {
	// Grab a free port, then stop listening on it
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	err = mailerFor(t, addr, false).SendSimple(toAddress, fromAddress, msgTextPlain)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 0, de.Code)
	assert.Equal(t, addr, de.Relay)
}
