package email

import (
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// contentHeader returns the MIME headers for a single part. Text leaves are
// quoted-printable so they stay readable on the wire. Everything else that
// isn't multipart is base64 so attachment bytes survive intact.
func contentHeader(p *Part) message.Header {
	var h message.Header

	switch {
	case p.IsMultipart():
		// go-message fills in the boundary
		h.SetContentType(p.ContentType, nil)
	case strings.HasPrefix(p.ContentType, "text/") && p.FileName == "":
		h.SetContentType(p.ContentType, map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
	default:
		h.SetContentType(p.ContentType, nil)
		h.Set("Content-Transfer-Encoding", "base64")
	}

	if p.FileName != "" {
		h.SetContentDisposition("attachment", map[string]string{
			"filename": p.FileName,
		})
	}
	return h
}

// render writes the top-level headers followed by the part tree
func render(w io.Writer, m *ComposedMessage) error {
	var h mail.Header
	h.Set("MIME-Version", "1.0")
	h.SetDate(m.Date)
	h.SetAddressList("From", []*mail.Address{m.From})
	h.SetAddressList("To", []*mail.Address{m.To})
	if m.Subject != "" {
		h.SetSubject(m.Subject)
	}
	if m.MessageID != "" {
		h.SetMessageID(m.MessageID)
	}

	ch := contentHeader(m.Root)
	fields := ch.Fields()
	for fields.Next() {
		h.Set(fields.Key(), fields.Value())
	}

	mw, err := message.CreateWriter(w, h.Header)
	if err != nil {
		return err
	}
	return writePart(mw, m.Root)
}

// writePart fills in the body of p and closes w
func writePart(w *message.Writer, p *Part) error {
	if !p.IsMultipart() {
		if _, err := w.Write(p.Body); err != nil {
			return err
		}
		return w.Close()
	}

	for _, c := range p.Parts {
		cw, err := w.CreatePart(contentHeader(c))
		if err != nil {
			return err
		}
		if err := writePart(cw, c); err != nil {
			return err
		}
	}
	return w.Close()
}
