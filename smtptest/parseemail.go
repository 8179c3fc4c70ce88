package smtptest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Node is one MIME part of a received message, with its transfer encoding
// already decoded.
type Node struct {
	ContentType string
	FileName    string
	Body        []byte
	Parts       []*Node
}

// Message is a received message broken into headers and a part tree
type Message struct {
	From      string
	To        []string
	Subject   string
	MessageID string
	Date      time.Time
	Root      *Node
}

// ParseMessage decodes the raw payload of a received email. Transfer
// encodings are undone, so leaf bodies hold the bytes the sender attached.
func ParseMessage(raw string) (*Message, error) {
	e, err := message.Read(strings.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("can't read the message: %v", err)
	}

	h := mail.Header{Header: e.Header}
	m := &Message{}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		m.From = from[0].Address
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			m.To = append(m.To, a.Address)
		}
	}
	m.Subject, _ = h.Subject()
	m.MessageID, _ = h.MessageID()
	m.Date, _ = h.Date()

	m.Root, err = parseEntity(e)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseEntity(e *message.Entity) (*Node, error) {
	ct, _, err := e.Header.ContentType()
	if err != nil {
		return nil, fmt.Errorf("can't parse a Content-Type: %v", err)
	}
	n := &Node{ContentType: ct}

	if _, params, err := e.Header.ContentDisposition(); err == nil {
		n.FileName = params["filename"]
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return nil, fmt.Errorf("can't read a message part: %v", err)
			}
			c, err := parseEntity(p)
			if err != nil {
				return nil, err
			}
			n.Parts = append(n.Parts, c)
		}
		return n, nil
	}

	n.Body, err = io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read a part body: %v", err)
	}
	return n, nil
}
