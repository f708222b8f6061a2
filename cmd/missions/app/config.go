package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type OutputFormat string

type Config struct {
	DBPath    string
	SessionID int64 // Zero lists the sessions instead of missions
	Format    OutputFormat
	Since     *time.Time
	Until     *time.Time
}

var validOutputFormats = map[OutputFormat]struct{}{
	FormatText: {},
	FormatJSON: {},
}

func NewConfig() *Config {
	return &Config{
		Format: FormatText,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:])
}

// ParseArgs reads the configuration from command line arguments
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var format, since, until string
	fs.StringVar(&c.DBPath, "db", "", "Path to the archive database file")
	fs.Int64Var(&c.SessionID, "s", 0, "Session ID, lists sessions when omitted")
	fs.StringVar(&format, "f", string(FormatText), "Output format. [text, json]")
	fs.StringVar(&since, "since", "", "Only missions downloaded at or after this time (RFC 3339)")
	fs.StringVar(&until, "until", "", "Only missions downloaded at or before this time (RFC 3339)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	format = strings.ToLower(format)

	var err error
	if c.Since, err = parseTime("since", since); err != nil {
		return nil, err
	}
	if c.Until, err = parseTime("until", until); err != nil {
		return nil, err
	}

	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID < 0 {
		err = fmt.Errorf("invalid session id: %d", c.SessionID)
	} else if _, ok := validOutputFormats[OutputFormat(format)]; !ok {
		err = fmt.Errorf("invalid output format: %s", format)
	} else if c.Since != nil && c.Until != nil && c.Until.Before(*c.Since) {
		err = errors.New("until must not be before since")
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = OutputFormat(format)
	return c, nil
}

func parseTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s time: %w", name, err)
	}
	t = t.UTC()
	return &t, nil
}
