package email

import (
	"bytes"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

func TestUnmarshalYAML(t *testing.T) {
	testCases := []struct {
		description   string
		input         string
		shouldBeError bool
	}{
		{
			description: "valid case",
			input: `relayAddress: smtp://0.0.0.0:123
helloName: mailer.example.com
startTLS: true
skipCertVerification: false
dialTimeout: 10s
sessionTimeout: 5m
maxAttachmentSize: 10MiB
subject: Hello
`,
			shouldBeError: false,
		},
		{
			description: "wrong scheme",
			input: `relayAddress: https://0.0.0.0:123
`,
			shouldBeError: true,
		},
		// We should allow this because smtp:// is self evident
		{
			description: "no scheme",
			input: `relayAddress: 0.0.0.0:123
`,
			shouldBeError: false,
		},
		// The port defaults to 25
		{
			description: "host name only",
			input: `relayAddress: localhost
`,
			shouldBeError: false,
		},
		{
			description: "no relay address",
			input: `helloName: mailer.example.com
`,
			shouldBeError: true,
		},
		{
			description: "startTLS is not a boolean",
			input: `relayAddress: localhost
startTLS: sometimes
`,
			shouldBeError: true,
		},
		{
			description: "dial timeout is not a duration",
			input: `relayAddress: localhost
dialTimeout: "10"
`,
			shouldBeError: true,
		},
		{
			description: "session timeout is not a duration",
			input: `relayAddress: localhost
sessionTimeout: forever
`,
			shouldBeError: true,
		},
		{
			description: "attachment size is not a size",
			input: `relayAddress: localhost
maxAttachmentSize: lots
`,
			shouldBeError: true,
		},
		{
			description:   "not a map[string]string",
			input:         `[]`,
			shouldBeError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			var uc UserConfig
			buf := bytes.NewBuffer([]byte(tc.input))
			dec := yaml.NewDecoder(buf)
			err := dec.Decode(&uc)
			if (err != nil) != tc.shouldBeError {
				t.Errorf(
					"%v: unexpected error status--wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}
		})
	}
}

func TestCheckAndSetDefaults(t *testing.T) {
	testCases := []struct {
		description   string
		input         UserConfig
		expected      UserConfig
		shouldBeError bool
	}{
		{
			description: "defaults are filled in",
			input:       UserConfig{RelayHost: "localhost"},
			expected: UserConfig{
				RelayHost:         "localhost",
				RelayPort:         "25",
				HelloName:         "localhost",
				DialTimeout:       time.Duration(30) * time.Second,
				SessionTimeout:    time.Duration(10) * time.Minute,
				MaxAttachmentSize: 25 << 20,
			},
		},
		{
			description: "user settings are kept",
			input: UserConfig{
				RelayHost:         "mail.example.com",
				RelayPort:         "587",
				HelloName:         "me.example.com",
				DialTimeout:       time.Second,
				SessionTimeout:    time.Minute,
				MaxAttachmentSize: 1024,
			},
			expected: UserConfig{
				RelayHost:         "mail.example.com",
				RelayPort:         "587",
				HelloName:         "me.example.com",
				DialTimeout:       time.Second,
				SessionTimeout:    time.Minute,
				MaxAttachmentSize: 1024,
			},
		},
		{
			description:   "no host",
			input:         UserConfig{RelayPort: "25"},
			shouldBeError: true,
		},
		{
			description:   "port out of range",
			input:         UserConfig{RelayHost: "localhost", RelayPort: "70000"},
			shouldBeError: true,
		},
		{
			description:   "negative timeout",
			input:         UserConfig{RelayHost: "localhost", DialTimeout: -time.Second},
			shouldBeError: true,
		},
		{
			description:   "negative session timeout",
			input:         UserConfig{RelayHost: "localhost", SessionTimeout: -time.Second},
			shouldBeError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			c, err := tc.input.CheckAndSetDefaults()
			if (err != nil) != tc.shouldBeError {
				t.Fatalf(
					"wanted error status %v but got %v with error %v",
					tc.shouldBeError,
					err != nil,
					err,
				)
			}
			if err == nil && c != tc.expected {
				t.Errorf("expected config %+v but got %+v", tc.expected, c)
			}
		})
	}
}

// A short dial timeout mustn't cut off a long DATA transfer
func TestTransportTimeouts(t *testing.T) {
	uc := UserConfig{RelayHost: "localhost", DialTimeout: time.Second}
	c, err := uc.CheckAndSetDefaults()
	if err != nil {
		t.Fatal(err)
	}

	st := c.NewSMTPTransport()
	if st.dialTimeout != time.Second {
		t.Errorf("expected a dial timeout of 1s but got %v", st.dialTimeout)
	}
	if st.sessionTimeout != time.Duration(10)*time.Minute {
		t.Errorf("expected a session timeout of 10m but got %v", st.sessionTimeout)
	}
}
