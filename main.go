package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/ptgott/one-mailer/dispatch"
	"github.com/ptgott/one-mailer/userconfig"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pathList collects a flag that can be given more than once, keeping the
// order the user gave it in.
type pathList []string

func (p *pathList) String() string {
	return strings.Join(*p, ",")
}

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	// Log with filename and line number. This writes to stderr, so it should
	// be thread safe.
	// https://github.com/rs/zerolog/blob/7ccd4c940bf8a02fcc5f10e5475f9d3daff04d57/log/log.go#L13
	log.Logger = log.With().Caller().Logger()

	// Intercept interrupts so we can get more visibility into them. A send
	// is a single blocking call, so there's nothing to drain.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func(c chan os.Signal) {
		<-sigCh
		log.Info().Msg("interrupt: exiting")
		os.Exit(0)
	}(sigCh)

	configPath := flag.String(
		"config",
		"./config.yaml",
		"path to a JSON or YAML file containing your configuration",
	)
	to := flag.String("to", "", "recipient address (overrides message.toAddress)")
	from := flag.String("from", "", "sender address (overrides message.fromAddress)")
	text := flag.String("text", "", "plain text body")
	html := flag.String("html", "", "HTML body")
	var attachments pathList
	flag.Var(&attachments, "attach", "file to attach; repeat for more than one")
	noEmail := flag.Bool(
		"noemail",
		false,
		"print the message to stdout instead of sending it",
	)
	level := flag.String(
		"level",
		"info",
		`log level: "info", "debug", or "warn"`,
	)
	flag.Parse()

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	log.Info().
		Str("configPath", *configPath).
		Msg("starting the application")

	f, err := os.Open(*configPath)

	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Err(err).
			Msg("We can't open the application config file")
		os.Exit(1)
	}

	config, err := userconfig.Parse(f)
	f.Close()

	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem parsing your config")
		os.Exit(1)
	}

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	log.Info().Str("configPath", *configPath).Msg("successfully validated the config")

	err = dispatch.Run(os.Stdout, &checkedConfig, dispatch.Request{
		ToAddress:       *to,
		FromAddress:     *from,
		Text:            *text,
		HTML:            *html,
		AttachmentPaths: attachments,
		NoEmail:         *noEmail,
	})
	if err != nil {
		log.Error().Err(err).Msg("error sending an email")
		os.Exit(1)
	}
}
