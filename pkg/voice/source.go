package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// EventKind is the type of a recognition event.
type EventKind int

const (
	EventWake EventKind = iota
	EventTimeout
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventWake:
		return "wake"
	case EventTimeout:
		return "timeout"
	case EventCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Event is one recognizer result.
type Event struct {
	Kind    EventKind
	Command Command
	At      time.Time
}

// Source delivers recognition events until its input ends.
type Source interface {
	Events() <-chan Event
}

// LineSource parses recognizer output one line per event. Blank lines and
// lines starting with '#' are ignored.
type LineSource struct {
	cfg    Config
	r      io.Reader
	logger *slog.Logger
	events chan Event

	// Muted, when set, drops lines while it returns true.
	Muted func() bool

	now func() time.Time
}

// NewLineSource creates a source reading from r.
func NewLineSource(cfg Config, r io.Reader, logger *slog.Logger) (*LineSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid voice config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LineSource{
		cfg:    cfg,
		r:      r,
		logger: logger,
		events: make(chan Event, cfg.EventBuffer),
		now:    time.Now,
	}, nil
}

// Events returns the event channel. It is closed when Run returns.
func (s *LineSource) Events() <-chan Event {
	return s.events
}

// Run reads lines until EOF or ctx is cancelled. After a wake event with
// no command within ListenTimeout, a timeout event is generated.
func (s *LineSource) Run(ctx context.Context) error {
	defer close(s.events)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var (
		listen  *time.Timer
		timeout <-chan time.Time
	)
	stopListen := func() {
		if listen != nil {
			listen.Stop()
			listen = nil
			timeout = nil
		}
	}
	defer stopListen()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timeout:
			listen, timeout = nil, nil
			s.emit(ctx, Event{Kind: EventTimeout})

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read recognizer output: %w", err)
					}
				default:
				}
				return nil
			}

			ev, ok := s.parse(line)
			if !ok {
				continue
			}
			if s.Muted != nil && s.Muted() {
				s.logger.Debug("dropping recognizer line during playback", "line", line)
				continue
			}

			stopListen()
			if ev.Kind == EventWake && s.cfg.ListenTimeout > 0 {
				listen = time.NewTimer(s.cfg.ListenTimeout)
				timeout = listen.C
			}
			s.emit(ctx, ev)
		}
	}
}

func (s *LineSource) parse(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Event{}, false
	}
	switch strings.ToLower(line) {
	case "wake":
		return Event{Kind: EventWake}, true
	case "timeout":
		return Event{Kind: EventTimeout}, true
	}

	cmd, ok := Match(line)
	if !ok {
		s.logger.Info("unrecognised command text", "text", line)
	}
	return Event{Kind: EventCommand, Command: cmd}, true
}

func (s *LineSource) emit(ctx context.Context, ev Event) {
	ev.At = s.now()
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
