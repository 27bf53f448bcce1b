package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxLineBytes = 1 << 20

// Event is one dispatched text/event-stream event.
type Event struct {
	ID    string
	Event string
	Data  string
}

// Parser reads text/event-stream framing. Blocks without data are not
// dispatched; comment lines are skipped.
type Parser struct {
	sc    *bufio.Scanner
	retry time.Duration
}

// NewParser creates a parser reading from r.
func NewParser(r io.Reader) *Parser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	return &Parser{sc: sc}
}

// Retry returns the last reconnection hint sent by the server, or zero.
func (p *Parser) Retry() time.Duration { return p.retry }

// Next returns the next event. It returns io.EOF when the stream ends
// cleanly between events and io.ErrUnexpectedEOF when it ends mid-event.
func (p *Parser) Next() (Event, error) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
		partial bool
	)
	for p.sc.Scan() {
		line := p.sc.Text()
		if line == "" {
			if hasData {
				ev.Data = data.String()
				if ev.Event == "" {
					ev.Event = "message"
				}
				return ev, nil
			}
			ev, data, partial = Event{}, strings.Builder{}, false
			continue
		}
		partial = true
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				ev.ID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				p.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := p.sc.Err(); err != nil {
		return Event{}, err
	}
	if partial || hasData {
		return Event{}, io.ErrUnexpectedEOF
	}
	return Event{}, io.EOF
}
