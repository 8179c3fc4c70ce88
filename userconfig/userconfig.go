package userconfig

import (
	"errors"
	"fmt"
	"io"

	"github.com/ptgott/one-mailer/email"
	"github.com/rs/zerolog/log"

	yaml "gopkg.in/yaml.v2"
)

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	EmailSettings email.UserConfig `yaml:"email"`
	Message       MessageDefaults  `yaml:"message"`
}

// MessageDefaults holds addresses to use when none are given on the command
// line
type MessageDefaults struct {
	FromAddress string `yaml:"fromAddress"`
	ToAddress   string `yaml:"toAddress"`
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration.
// Addresses are checked when a message is composed, not here.
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{
		Message: m.Message,
	}

	e, err := m.EmailSettings.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.EmailSettings = e

	return c, nil
}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing. The Reader r can be either JSON
// or YAML.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	var es email.UserConfig = email.UserConfig{}
	if m.EmailSettings == es {
		return &Meta{}, errors.New("must include an \"email\" section")
	}

	log.Debug().
		Str("relayHost", m.EmailSettings.RelayHost).
		Msg("parsed the email settings")

	return &m, nil
}
