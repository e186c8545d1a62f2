// Package batch reads request lists of the form "ACTION MESSAGE", one per
// line, as fed to the batch client.
package batch

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/Zereker/wordwire"
)

// maxLineSize bounds a single input line.
const maxLineSize = wordwire.MaxPayloadLength + 64

// Request is one parsed line.
type Request struct {
	Line    int
	Action  wordwire.Action
	Message string
}

// LineError reports a line that could not be parsed.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

// Unwrap returns the parse failure.
func (e *LineError) Unwrap() error {
	return e.Err
}

// Parse reads requests from r. Blank lines are skipped. Lines that fail to
// parse are collected into a *multierror.Error of *LineError values; the
// good lines are returned alongside it. An I/O error ends parsing.
func Parse(r io.Reader) ([]Request, error) {
	var (
		requests []Request
		result   *multierror.Error
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		req, err := ParseLine(text)
		if err != nil {
			result = multierror.Append(result, &LineError{Line: line, Err: err})
			continue
		}
		req.Line = line
		requests = append(requests, req)
	}

	if err := scanner.Err(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "read requests"))
	}

	return requests, result.ErrorOrNil()
}

// ParseLine splits "ACTION MESSAGE". The message is everything after the
// first run of spaces and may itself contain spaces; it must not be empty.
func ParseLine(text string) (Request, error) {
	text = strings.TrimLeft(text, " \t")
	i := strings.IndexAny(text, " \t")
	if i < 0 || strings.TrimSpace(text[i:]) == "" {
		return Request{}, errors.Errorf("want \"ACTION MESSAGE\", got %q", text)
	}

	action, err := wordwire.ParseAction(text[:i])
	if err != nil {
		return Request{}, err
	}

	return Request{Action: action, Message: strings.TrimLeft(text[i:], " \t")}, nil
}

// Open returns the named file, or stdin for "-". The caller closes it.
func Open(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "open requests")
	}
	return f, nil
}
