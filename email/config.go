package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/units"
)

const (
	smtpScheme        string        = "smtp://"
	defaultSMTPPort   string        = "25"
	defaultHelloName  string        = "localhost"
	defaultTimeout    time.Duration = time.Duration(30) * time.Second
	defaultAttachSize int64         = int64(25 * units.MiB)

	// Long enough to push the largest default attachment over a slow link
	defaultSessionTimeout time.Duration = time.Duration(10) * time.Minute
)

// UserConfig represents config options provided by the user. Not meant to be
// used directly for sending email without validation. Call
// CheckAndSetDefaults first.
type UserConfig struct {
	RelayHost            string
	RelayPort            string
	HelloName            string
	StartTLS             bool
	SkipCertVerification bool
	DialTimeout          time.Duration
	SessionTimeout       time.Duration
	MaxAttachmentSize    int64
	Subject              string
}

// parseRelayAddress splits a relay address into host and port. Don't
// require the user to include a scheme. If there's none, use one for SMTP.
func parseRelayAddress(addr string) (host string, port string, err error) {
	if addr == "" {
		return "", "", errors.New("must supply a relay address")
	}

	ra := addr
	if !strings.Contains(addr, "://") {
		ra = smtpScheme + addr
	}

	u, err := url.Parse(ra)
	if err != nil {
		return "", "", fmt.Errorf("can't parse the relay address: %v", err)
	}

	if u.Scheme+"://" != smtpScheme {
		return "", "", fmt.Errorf("the relay address must use the %v scheme", smtpScheme)
	}

	if u.Hostname() == "" {
		return "", "", fmt.Errorf("the relay address %q has no host name", addr)
	}

	return u.Hostname(), u.Port(), nil
}

// UnmarshalYAML parses a user-provided YAML configuration, returning any
// parsing errors.
func (uc *UserConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	err := unmarshal(&v)

	if err != nil {
		return fmt.Errorf("can't parse the email config: %v", err)
	}

	h, p, err := parseRelayAddress(v["relayAddress"])
	if err != nil {
		return err
	}
	uc.RelayHost = h
	uc.RelayPort = p
	uc.HelloName = v["helloName"]
	uc.Subject = v["subject"]

	if s, ok := v["startTLS"]; ok {
		uc.StartTLS, err = strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("can't parse startTLS as a boolean: %v", err)
		}
	}

	if s, ok := v["skipCertVerification"]; ok {
		uc.SkipCertVerification, err = strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("can't parse skipCertVerification as a boolean: %v", err)
		}
	}

	if s, ok := v["dialTimeout"]; ok {
		uc.DialTimeout, err = time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("can't parse the dial timeout as a duration: %v", err)
		}
	}

	if s, ok := v["sessionTimeout"]; ok {
		uc.SessionTimeout, err = time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("can't parse the session timeout as a duration: %v", err)
		}
	}

	if s, ok := v["maxAttachmentSize"]; ok {
		b, err := units.ParseBase2Bytes(s)
		if err != nil {
			return fmt.Errorf("can't parse the maximum attachment size: %v", err)
		}
		uc.MaxAttachmentSize = int64(b)
	}

	return nil
}

// CheckAndSetDefaults validates uc and either returns a copy of uc with
// default settings applied or returns an error due to an invalid
// configuration
func (uc *UserConfig) CheckAndSetDefaults() (UserConfig, error) {
	c := *uc

	if c.RelayHost == "" {
		return UserConfig{}, errors.New("must supply a relay address")
	}

	if c.RelayPort == "" {
		c.RelayPort = defaultSMTPPort
	}
	if p, err := strconv.Atoi(c.RelayPort); err != nil || p <= 0 || p > 65535 {
		return UserConfig{}, fmt.Errorf("%q is not a valid relay port", c.RelayPort)
	}

	if c.HelloName == "" {
		c.HelloName = defaultHelloName
	}

	if c.DialTimeout < 0 {
		return UserConfig{}, errors.New("the dial timeout can't be negative")
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultTimeout
	}

	if c.SessionTimeout < 0 {
		return UserConfig{}, errors.New("the session timeout can't be negative")
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = defaultSessionTimeout
	}

	if c.MaxAttachmentSize < 0 {
		return UserConfig{}, errors.New("the maximum attachment size can't be negative")
	}
	if c.MaxAttachmentSize == 0 {
		c.MaxAttachmentSize = defaultAttachSize
	}

	return c, nil
}

// NewSMTPTransport builds an SMTPTransport from a validated config. Call
// CheckAndSetDefaults first.
func (uc UserConfig) NewSMTPTransport() *SMTPTransport {
	return &SMTPTransport{
		host:      uc.RelayHost,
		port:      uc.RelayPort,
		helloName: uc.HelloName,
		startTLS:  uc.StartTLS,
		tlsConfig: &tls.Config{
			ServerName:         uc.RelayHost,
			InsecureSkipVerify: uc.SkipCertVerification,
		},
		dialTimeout:    uc.DialTimeout,
		sessionTimeout: uc.SessionTimeout,
	}
}

// NewMailer builds a Mailer from a validated config, delivering through t.
// Pass nil to use an SMTPTransport for the configured relay.
func (uc UserConfig) NewMailer(t Transport) *Mailer {
	if t == nil {
		t = uc.NewSMTPTransport()
	}
	return NewMailer(
		t,
		WithSubject(uc.Subject),
		WithMaxAttachmentSize(uc.MaxAttachmentSize),
	)
}

// RelayAddress returns host:port for the configured relay
func (uc UserConfig) RelayAddress() string {
	return net.JoinHostPort(uc.RelayHost, uc.RelayPort)
}
