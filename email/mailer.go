package email

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Mailer assembles messages and hands them to its Transport. Create one per
// relay with NewMailer. A Mailer holds no state that changes between sends,
// so each Send* call is independent of the others. Whether calls can run
// concurrently depends on the Transport.
type Mailer struct {
	transport         Transport
	subject           string
	maxAttachmentSize int64
	now               func() time.Time
}

// Option configures a Mailer
type Option func(*Mailer)

// WithSubject sets the Subject header of every message the Mailer sends
func WithSubject(s string) Option {
	return func(ml *Mailer) { ml.subject = s }
}

// WithMaxAttachmentSize caps the number of bytes read from each attachment.
// Zero disables the cap.
func WithMaxAttachmentSize(n int64) Option {
	return func(ml *Mailer) { ml.maxAttachmentSize = n }
}

// WithClock overrides the source of the Date header
func WithClock(now func() time.Time) Option {
	return func(ml *Mailer) { ml.now = now }
}

// NewMailer returns a Mailer that delivers through t. If t is nil, every send
// fails with a DeliveryError wrapping ErrNoTransport.
func NewMailer(t Transport, opts ...Option) *Mailer {
	ml := &Mailer{
		transport: t,
		now:       time.Now,
	}
	for _, o := range opts {
		o(ml)
	}
	return ml
}

// SendSimple sends text as a single text/plain part. The part is
// quoted-printable on the wire, so line breaks in text arrive as CRLF. The
// ComposedMessage handed to the transport keeps text exactly as given.
func (ml *Mailer) SendSimple(to, from, text string) error {
	m, err := ml.ComposeSimple(to, from, text)
	if err != nil {
		return err
	}
	return ml.deliver(m)
}

// SendHTMLOnly sends html as a single text/html part
func (ml *Mailer) SendHTMLOnly(to, from, html string) error {
	m, err := ml.ComposeHTMLOnly(to, from, html)
	if err != nil {
		return err
	}
	return ml.deliver(m)
}

// SendAlternative sends a multipart/alternative message: text first, then
// html. Both parts are quoted-printable, with the same line break handling
// as SendSimple.
func (ml *Mailer) SendAlternative(to, from, text, html string) error {
	m, err := ml.ComposeAlternative(to, from, text, html)
	if err != nil {
		return err
	}
	return ml.deliver(m)
}

// SendAlternativeWithAttachments sends a multipart/mixed message made of the
// text/html alternative followed by one part per attachment, in order. If
// any attachment can't be read, nothing is sent.
func (ml *Mailer) SendAlternativeWithAttachments(to, from, text, html string, attachments []Attachment) error {
	m, err := ml.ComposeAlternativeWithAttachments(to, from, text, html, attachments)
	if err != nil {
		return err
	}
	return ml.deliver(m)
}

// deliver blocks until the transport accepts or rejects m. Any failure is
// reported as a *DeliveryError.
func (ml *Mailer) deliver(m *ComposedMessage) error {
	log.Debug().
		Str("from", m.From.Address).
		Str("to", m.To.Address).
		Str("contentType", m.Root.ContentType).
		Int("parts", len(m.Root.Parts)).
		Msg("composed a message")

	if ml.transport == nil {
		log.Error().Err(ErrNoTransport).Str("to", m.To.Address).Msg("message was not delivered")
		return &DeliveryError{Err: ErrNoTransport}
	}

	err := ml.transport.Deliver(m)
	if err == nil {
		log.Info().
			Str("to", m.To.Address).
			Str("messageID", m.MessageID).
			Msg("message accepted for delivery")
		return nil
	}

	var de *DeliveryError
	if !errors.As(err, &de) {
		de = &DeliveryError{Err: err}
	}
	log.Error().Err(de).Str("to", m.To.Address).Msg("message was not delivered")
	return de
}
