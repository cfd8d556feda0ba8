package sidecar

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Stream identifies which output stream of the backend a relay drains.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Level is the sink severity used for lines from this stream.
func (s Stream) Level() zerolog.Level {
	if s == Stderr {
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// Prefix marks relayed lines apart from the shell's own log lines.
func (s Stream) Prefix() string {
	return "sidecar " + s.String() + ": "
}

// Relay copies r into sink one line per event until r reaches EOF or fails.
// Lines have no length limit; a final unterminated line is still written.
// Read errors end the relay silently.
func Relay(r io.Reader, sink zerolog.Logger, stream Stream) {
	br := bufio.NewReader(r)
	prefix := stream.Prefix()
	level := stream.Level()

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			sink.WithLevel(level).Str("stream", stream.String()).Msg(prefix + line)
		}
		if err != nil {
			return
		}
	}
}
