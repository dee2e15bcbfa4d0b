package ai

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is a single server-sent event from a provider stream
type sseEvent struct {
	Type string // "event:" field, empty for the default event type
	Data string // "data:" payload, multiple lines joined with newlines
}

// sseScanner reads text/event-stream payloads. Events are delimited by
// blank lines; comment lines and unknown fields are ignored per the SSE
// specification.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. Returns false at end of stream or on
// error; check Err to tell the two apart.
func (s *sseScanner) Next() bool {
	s.current = sseEvent{}

	var dataLines []string
	var eventType string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')

		if err != nil && line == "" {
			if err == io.EOF {
				// Emit a final event that was not newline-terminated
				if hasData {
					s.current = sseEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
					s.err = io.EOF
					return true
				}
				return false
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line terminates the event
		if line == "" {
			if hasData {
				s.current = sseEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				return true
			}
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field = line
			value = ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		}
	}
}

// Event returns the most recently parsed event, valid after Next returns true
func (s *sseScanner) Event() sseEvent {
	return s.current
}

// Err returns the first scan error, nil on clean EOF
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
