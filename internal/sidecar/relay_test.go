package sidecar

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayedLine struct {
	Level   string `json:"level"`
	Stream  string `json:"stream"`
	Message string `json:"message"`
}

// syncBuffer is a bytes.Buffer shared by concurrent relays.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func parseRelayed(t *testing.T, out string) []relayedLine {
	t.Helper()
	var lines []relayedLine
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 1024*1024), 4*1024*1024)
	for sc.Scan() {
		var l relayedLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l), "line: %s", sc.Text())
		lines = append(lines, l)
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestStream_Tags(t *testing.T) {
	assert.Equal(t, "stdout", Stdout.String())
	assert.Equal(t, "stderr", Stderr.String())
	assert.Equal(t, zerolog.InfoLevel, Stdout.Level())
	assert.Equal(t, zerolog.ErrorLevel, Stderr.Level())
	assert.Equal(t, "sidecar stdout: ", Stdout.Prefix())
	assert.Equal(t, "sidecar stderr: ", Stderr.Prefix())
}

func TestRelay_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	input := "first\r\nsecond\n\nlast without newline"

	Relay(strings.NewReader(input), zerolog.New(&buf), Stdout)

	lines := parseRelayed(t, buf.String())
	require.Len(t, lines, 4)
	assert.Equal(t, "sidecar stdout: first", lines[0].Message)
	assert.Equal(t, "sidecar stdout: second", lines[1].Message)
	assert.Equal(t, "sidecar stdout: ", lines[2].Message)
	assert.Equal(t, "sidecar stdout: last without newline", lines[3].Message)
	for _, l := range lines {
		assert.Equal(t, "info", l.Level)
		assert.Equal(t, "stdout", l.Stream)
	}
}

func TestRelay_StderrIsError(t *testing.T) {
	var buf bytes.Buffer

	Relay(strings.NewReader("boom\n"), zerolog.New(&buf), Stderr)

	lines := parseRelayed(t, buf.String())
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0].Level)
	assert.Equal(t, "stderr", lines[0].Stream)
	assert.Equal(t, "sidecar stderr: boom", lines[0].Message)
}

func TestRelay_LongLineNotTruncated(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("x", 256*1024)

	Relay(strings.NewReader(long+"\nshort\n"), zerolog.New(&buf), Stdout)

	lines := parseRelayed(t, buf.String())
	require.Len(t, lines, 2)
	assert.Equal(t, "sidecar stdout: "+long, lines[0].Message)
	assert.Equal(t, "sidecar stdout: short", lines[1].Message)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestRelay_ReadErrorEndsQuietly(t *testing.T) {
	var buf bytes.Buffer
	r := &failingReader{data: []byte("partial\nhalf"), err: io.ErrClosedPipe}

	Relay(r, zerolog.New(&buf), Stdout)

	lines := parseRelayed(t, buf.String())
	require.Len(t, lines, 2)
	assert.Equal(t, "sidecar stdout: half", lines[1].Message)
}

func TestRelay_InterleavedStreamsKeepEveryLineOnce(t *testing.T) {
	const n = 500
	sink := &syncBuffer{}
	logger := zerolog.New(sink)

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); Relay(outR, logger, Stdout) }()
	go func() { defer wg.Done(); Relay(errR, logger, Stderr) }()

	// Writes are interleaved and split mid-line to exercise buffering.
	for i := 0; i < n; i++ {
		out := fmt.Sprintf("out-%d\n", i)
		_, _ = io.WriteString(outW, out[:2])
		_, _ = io.WriteString(errW, fmt.Sprintf("err-%d\n", i))
		_, _ = io.WriteString(outW, out[2:])
	}
	require.NoError(t, outW.Close())
	require.NoError(t, errW.Close())
	wg.Wait()

	seen := make(map[string]int)
	for _, l := range parseRelayed(t, sink.String()) {
		switch l.Stream {
		case "stdout":
			assert.Equal(t, "info", l.Level)
			assert.True(t, strings.HasPrefix(l.Message, "sidecar stdout: out-"), l.Message)
		case "stderr":
			assert.Equal(t, "error", l.Level)
			assert.True(t, strings.HasPrefix(l.Message, "sidecar stderr: err-"), l.Message)
		default:
			t.Fatalf("unexpected stream %q", l.Stream)
		}
		seen[l.Message]++
	}

	require.Len(t, seen, 2*n)
	for i := 0; i < n; i++ {
		assert.Equal(t, 1, seen[fmt.Sprintf("sidecar stdout: out-%d", i)])
		assert.Equal(t, 1, seen[fmt.Sprintf("sidecar stderr: err-%d", i)])
	}
}
