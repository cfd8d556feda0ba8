package backend

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// ValidateExternalURL accepts absolute http and https URLs only.
func ValidateExternalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return u.String(), nil
}

// ParseClientLevel maps a level name sent by the web UI to a sink level.
// Unknown names log at info.
func ParseClientLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogClient writes a line from the web UI to the sink.
func LogClient(sink zerolog.Logger, level, message string) {
	sink.WithLevel(ParseClientLevel(level)).
		Str("stream", "client").
		Msg("client: " + message)
}
