package gpgkit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// StatusPrefix marks machine-readable lines on gpg's --status-fd channel.
const StatusPrefix = "[GNUPG:] "

// Result accumulates the status events and output of one gpg invocation.
// The set of implementations is closed to this package.
type Result interface {
	// HandleStatus consumes one status event. It returns an error wrapping
	// ErrUnknownStatus for keywords the result does not recognize.
	HandleStatus(keyword, value string) error

	setOutput(out Output)
}

// Output is everything gpg wrote outside the status protocol.
type Output struct {
	// Data is the payload gpg wrote to stdout.
	Data []byte
	// Stderr is the full diagnostic channel, status lines included.
	Stderr string
	// ExitCode is the exit status of the gpg process.
	ExitCode int
}

func (o *Output) setOutput(out Output) {
	*o = out
}

// ParseStatusLine splits a status line into keyword and value. ok is false if
// the line does not carry StatusPrefix. The value is everything after the
// first run of whitespace following the keyword, with trailing whitespace
// removed.
func ParseStatusLine(line string) (keyword, value string, ok bool) {
	line = strings.TrimRight(line, " \t\r\n")
	rest, found := strings.CutPrefix(line, StatusPrefix)
	if !found {
		return "", "", false
	}
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return "", "", false
	}
	i := strings.IndexAny(rest, " \t")
	if i < 0 {
		return rest, "", true
	}
	return rest[:i], strings.TrimLeft(rest[i:], " \t"), true
}

// unknownStatus builds the error returned for an unrecognized keyword.
func unknownStatus(keyword string) error {
	return fmt.Errorf("%w: %q", ErrUnknownStatus, keyword)
}

// malformedStatus builds the error returned for a value with too few fields.
func malformedStatus(keyword, value string) error {
	return fmt.Errorf("%w: %s %q", ErrMalformedStatus, keyword, value)
}

// readStatus reads r line by line, dispatching status events to result as
// they arrive. It keeps draining after the first handler error so gpg never
// blocks on a full pipe, and returns that first error along with the full
// text read.
func readStatus(r io.Reader, result Result, logger *slog.Logger) (string, error) {
	var (
		transcript strings.Builder
		firstErr   error
	)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			transcript.WriteString(line)
			logger.Debug("gpg", "line", strings.TrimRight(line, "\r\n"))
			if keyword, value, ok := ParseStatusLine(line); ok && firstErr == nil {
				if herr := result.HandleStatus(keyword, value); herr != nil {
					firstErr = herr
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && firstErr == nil {
				firstErr = fmt.Errorf("reading status channel: %w", err)
			}
			return transcript.String(), firstErr
		}
	}
}
