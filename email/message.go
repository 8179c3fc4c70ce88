package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Media types used when assembling part trees
const (
	ContentTypeText        = "text/plain"
	ContentTypeHTML        = "text/html"
	ContentTypeAlternative = "multipart/alternative"
	ContentTypeMixed       = "multipart/mixed"
	// DefaultAttachmentType is used for any Attachment without a
	// ContentType.
	DefaultAttachmentType = "application/octet-stream"
)

// Attachment is a named byte stream to include in a message. The caller owns
// Content: it is read once, fully, during composition, and never closed or
// retained afterward.
type Attachment struct {
	FileName    string
	Content     io.Reader
	ContentType string // defaults to DefaultAttachmentType
}

// Part is one node of a MIME tree. Leaves carry a Body, multipart nodes
// carry Parts. FileName is only set for attachments.
type Part struct {
	ContentType string
	FileName    string
	Body        []byte
	Parts       []*Part
}

// IsMultipart reports whether p is a container for other parts
func (p *Part) IsMultipart() bool {
	return strings.HasPrefix(p.ContentType, "multipart/")
}

// ComposedMessage is the artifact handed to a Transport. A new one is built
// for every send and it isn't modified after that.
type ComposedMessage struct {
	From      *mail.Address
	To        *mail.Address
	Date      time.Time
	MessageID string
	Subject   string
	Root      *Part
}

// Recipients returns the envelope recipients. There is always exactly one.
func (m *ComposedMessage) Recipients() []string {
	return []string{m.To.Address}
}

// WriteTo renders m as an RFC 5322 message with a MIME body and writes it to
// w. Implements io.WriterTo.
func (m *ComposedMessage) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if err := render(&buf, m); err != nil {
		return 0, fmt.Errorf("can't render the message: %w", err)
	}
	return buf.WriteTo(w)
}

// parseAddress accepts exactly one mailbox, so lists such as
// "a@example.com, b@example.com" are rejected.
func parseAddress(field, value string) (*mail.Address, error) {
	a, err := mail.ParseAddress(value)
	if err != nil {
		return nil, &InvalidAddressError{Field: field, Value: value, Err: err}
	}
	return a, nil
}

// envelope parses both addresses and returns a ComposedMessage without a
// body. Address errors come back before anything else is touched.
func (ml *Mailer) envelope(to, from string) (*ComposedMessage, error) {
	f, err := parseAddress("from", from)
	if err != nil {
		return nil, err
	}
	t, err := parseAddress("to", to)
	if err != nil {
		return nil, err
	}

	return &ComposedMessage{
		From:      f,
		To:        t,
		Date:      ml.now(),
		MessageID: messageID(f),
		Subject:   ml.subject,
	}, nil
}

// messageID uses the sender's domain as the right-hand side, which is what
// most MUAs do.
func messageID(from *mail.Address) string {
	domain := "localhost"
	if i := strings.LastIndex(from.Address, "@"); i >= 0 && i < len(from.Address)-1 {
		domain = from.Address[i+1:]
	}
	return uuid.NewString() + "@" + domain
}

func textPart(text string) *Part {
	return &Part{ContentType: ContentTypeText, Body: []byte(text)}
}

func htmlPart(html string) *Part {
	return &Part{ContentType: ContentTypeHTML, Body: []byte(html)}
}

// alternativePart orders plain text before HTML. Clients pick the last part
// they can display, so the order matters.
func alternativePart(text, html string) *Part {
	return &Part{
		ContentType: ContentTypeAlternative,
		Parts:       []*Part{textPart(text), htmlPart(html)},
	}
}

// readAttachment drains a.Content into a leaf part. A limit of zero or less
// means no limit.
func readAttachment(a Attachment, limit int64) (*Part, error) {
	if a.Content == nil {
		return nil, &AttachmentReadError{FileName: a.FileName, Err: io.ErrUnexpectedEOF}
	}

	r := a.Content
	if limit > 0 {
		r = io.LimitReader(a.Content, limit+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &AttachmentReadError{FileName: a.FileName, Err: err}
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, &AttachmentReadError{FileName: a.FileName, Err: ErrAttachmentTooLarge}
	}

	return &Part{ContentType: mediaType(a.ContentType), FileName: a.FileName, Body: b}, nil
}

// mediaType drops any parameters from ct, e.g. the charset that
// mime.TypeByExtension adds. Empty or unparseable types fall back to
// DefaultAttachmentType.
func mediaType(ct string) string {
	if ct == "" {
		return DefaultAttachmentType
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return DefaultAttachmentType
	}
	return mt
}

// ComposeSimple builds a single-part text/plain message
func (ml *Mailer) ComposeSimple(to, from, text string) (*ComposedMessage, error) {
	m, err := ml.envelope(to, from)
	if err != nil {
		return nil, err
	}
	m.Root = textPart(text)
	return m, nil
}

// ComposeHTMLOnly builds a single-part text/html message
func (ml *Mailer) ComposeHTMLOnly(to, from, html string) (*ComposedMessage, error) {
	m, err := ml.envelope(to, from)
	if err != nil {
		return nil, err
	}
	m.Root = htmlPart(html)
	return m, nil
}

// ComposeAlternative builds a multipart/alternative message with the text
// part first and the HTML part second.
func (ml *Mailer) ComposeAlternative(to, from, text, html string) (*ComposedMessage, error) {
	m, err := ml.envelope(to, from)
	if err != nil {
		return nil, err
	}
	m.Root = alternativePart(text, html)
	return m, nil
}

// ComposeAlternativeWithAttachments builds a multipart/mixed message. Part 0
// is the same multipart/alternative that ComposeAlternative produces, and
// each attachment follows in the order given. Every stream is read before
// the message is returned; if one fails, no message is returned at all.
func (ml *Mailer) ComposeAlternativeWithAttachments(to, from, text, html string, attachments []Attachment) (*ComposedMessage, error) {
	m, err := ml.envelope(to, from)
	if err != nil {
		return nil, err
	}

	root := &Part{
		ContentType: ContentTypeMixed,
		Parts:       make([]*Part, 0, len(attachments)+1),
	}
	root.Parts = append(root.Parts, alternativePart(text, html))
	for _, a := range attachments {
		p, err := readAttachment(a, ml.maxAttachmentSize)
		if err != nil {
			return nil, err
		}
		root.Parts = append(root.Parts, p)
	}
	m.Root = root
	return m, nil
}
