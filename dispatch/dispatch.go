package dispatch

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/ptgott/one-mailer/email"
	"github.com/ptgott/one-mailer/userconfig"
	"github.com/rs/zerolog/log"
)

// Request describes one message to send. Empty addresses fall back to the
// config's message defaults.
type Request struct {
	ToAddress   string
	FromAddress string
	Text        string
	HTML        string
	// Paths of files to attach, in the order they should appear
	AttachmentPaths []string
	// Write the message to the output writer instead of sending it
	NoEmail bool
}

// Shape names the operation a Request maps to
type Shape string

const (
	ShapeSimple                     Shape = "simple"
	ShapeHTMLOnly                   Shape = "html-only"
	ShapeAlternative                Shape = "alternative"
	ShapeAlternativeWithAttachments Shape = "alternative-with-attachments"
)

// ChooseShape picks the message shape for r
func ChooseShape(r Request) (Shape, error) {
	switch {
	case len(r.AttachmentPaths) > 0:
		if r.Text == "" || r.HTML == "" {
			return "", errors.New("attachments need both a text and an HTML body")
		}
		return ShapeAlternativeWithAttachments, nil
	case r.Text != "" && r.HTML != "":
		return ShapeAlternative, nil
	case r.HTML != "":
		return ShapeHTMLOnly, nil
	case r.Text != "":
		return ShapeSimple, nil
	default:
		return "", errors.New("must supply a text body, an HTML body, or both")
	}
}

// fileSource opens its file on the first Read, so nothing is opened for a
// message that fails address validation.
type fileSource struct {
	path string
	f    *os.File
}

func (fs *fileSource) Read(p []byte) (int, error) {
	if fs.f == nil {
		f, err := os.Open(fs.path)
		if err != nil {
			return 0, err
		}
		fs.f = f
	}
	return fs.f.Read(p)
}

// Close is a no-op if the file was never opened
func (fs *fileSource) Close() error {
	if fs.f == nil {
		return nil
	}
	return fs.f.Close()
}

// attachmentsFor maps paths to attachments in order. The returned function
// closes whatever the mailer ended up opening.
func attachmentsFor(paths []string) ([]email.Attachment, func()) {
	srcs := make([]*fileSource, 0, len(paths))
	atts := make([]email.Attachment, 0, len(paths))
	for _, p := range paths {
		fs := &fileSource{path: p}
		srcs = append(srcs, fs)
		atts = append(atts, email.Attachment{
			FileName:    filepath.Base(p),
			Content:     fs,
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
		})
	}

	return atts, func() {
		for _, fs := range srcs {
			if err := fs.Close(); err != nil {
				log.Warn().Err(err).Str("path", fs.path).Msg("can't close an attachment")
			}
		}
	}
}

// Run sends one message described by req using config. If req.NoEmail is
// set, the rendered message is written to outwr instead.
func Run(outwr io.Writer, config *userconfig.Meta, req Request) error {
	if req.ToAddress == "" {
		req.ToAddress = config.Message.ToAddress
	}
	if req.FromAddress == "" {
		req.FromAddress = config.Message.FromAddress
	}

	shape, err := ChooseShape(req)
	if err != nil {
		return err
	}

	var t email.Transport
	if req.NoEmail {
		if outwr == nil {
			log.Warn().Msg(
				"a writer is unavailable for receiving the output message",
			)
		}
		t = &email.WriterTransport{W: outwr}
	}
	ml := config.EmailSettings.NewMailer(t)

	log.Info().
		Str("shape", string(shape)).
		Str("to", req.ToAddress).
		Bool("noEmail", req.NoEmail).
		Msg("attempting to send an email")

	switch shape {
	case ShapeSimple:
		return ml.SendSimple(req.ToAddress, req.FromAddress, req.Text)
	case ShapeHTMLOnly:
		return ml.SendHTMLOnly(req.ToAddress, req.FromAddress, req.HTML)
	case ShapeAlternative:
		return ml.SendAlternative(req.ToAddress, req.FromAddress, req.Text, req.HTML)
	case ShapeAlternativeWithAttachments:
		atts, closeAll := attachmentsFor(req.AttachmentPaths)
		defer closeAll()
		return ml.SendAlternativeWithAttachments(req.ToAddress, req.FromAddress, req.Text, req.HTML, atts)
	}
	return fmt.Errorf("unknown message shape %q", shape)
}
