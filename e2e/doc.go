package e2e

// e2e contains integration tests and utility code required to set up
// dependencies. Tests here start from a YAML config file, the way the
// command-line tool does, and send to an in-process SMTP relay. Note that
// some e2e test dependencies are also used by unit tests--these dependencies
// are not included here.
