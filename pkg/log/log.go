// SPDX-License-Identifier: GPL-2.0-or-later

package log

// API inspired by zerolog https://github.com/rs/zerolog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Level defines log level.
type Level uint8

// Logging constants, matching ffmpeg.
const (
	LevelError   Level = 16
	LevelWarning Level = 24
	LevelInfo    Level = 32
	LevelDebug   Level = 48
)

// String returns the upper case level name.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	}
	return fmt.Sprintf("LEVEL(%d)", uint8(l))
}

// UnixMicro microseconds since the Unix epoch.
type UnixMicro uint64

// Entry log entry.
type Entry struct {
	Level   Level
	Time    UnixMicro // Timestamp.
	Src     string    // Source.
	Segment string    // Segment id "major_minor", optional.
	Msg     string
}

// Event defines log event.
type Event struct {
	level   Level
	time    UnixMicro
	src     string
	segment string

	logger *Logger
}

// Src sets event source.
func (e *Event) Src(source string) *Event {
	e.src = source
	return e
}

// Segment sets the segment the event belongs to.
func (e *Event) Segment(major, minor int) *Event {
	e.segment = fmt.Sprintf("%04d_%04d", major, minor)
	return e
}

// Time sets event time.
func (e *Event) Time(t time.Time) *Event {
	e.time = UnixMicro(t.UnixMicro())
	return e
}

// Msg sends the event with msg added as the message field.
func (e *Event) Msg(msg string) {
	e.logger.send(Entry{
		Level:   e.level,
		Time:    e.time,
		Src:     e.src,
		Segment: e.segment,
		Msg:     msg,
	})
}

// Msgf sends the event with formatted msg added as the message field.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Msg(fmt.Sprintf(format, v...))
}

// Feed defines feed of logs.
type Feed <-chan Entry
type logFeed chan Entry

const feedBufferSize = 100

// Logger logs.
type Logger struct {
	feed  logFeed      // feed of logs.
	sub   chan logFeed // subscribe requests.
	unsub chan logFeed // unsubscribe requests.

	startOnce sync.Once
	started   chan struct{}
	stopped   chan struct{}
}

// NewLogger returns a new Logger. Events are
// discarded until the logger is started.
func NewLogger() *Logger {
	return &Logger{
		feed:  make(logFeed, feedBufferSize),
		sub:   make(chan logFeed),
		unsub: make(chan logFeed),

		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// NewMockLogger used for testing.
func NewMockLogger() *Logger {
	return NewLogger()
}

func (l *Logger) send(entry Entry) {
	select {
	case <-l.started:
	default:
		return
	}
	select {
	case l.feed <- entry:
	case <-l.stopped:
	}
}

// Start logger, blocks until context is canceled.
// Start must only be called once.
func (l *Logger) Start(ctx context.Context) {
	l.startOnce.Do(func() { close(l.started) })
	defer close(l.stopped)

	subs := map[logFeed]struct{}{}
	for {
		select {
		case <-ctx.Done():
			return

		case ch := <-l.sub:
			subs[ch] = struct{}{}

		case ch := <-l.unsub:
			close(ch)
			delete(subs, ch)

		case entry := <-l.feed:
			for ch := range subs {
				ch <- entry
			}
		}
	}
}

// CancelFunc cancels log feed subsciption.
type CancelFunc func()

// Subscribe returns a new chan with log feed and a CancelFunc.
func (l *Logger) Subscribe() (<-chan Entry, CancelFunc) {
	feed := make(logFeed)
	select {
	case l.sub <- feed:
	case <-l.stopped:
		close(feed)
		return feed, func() {}
	}

	cancel := func() {
		l.unSubscribe(feed)
	}
	return feed, cancel
}

func (l *Logger) unSubscribe(feed logFeed) {
	// Read feed until unsub request is accepted.
	for {
		select {
		case l.unsub <- feed:
			return
		case <-l.stopped:
			return
		case <-feed:
		}
	}
}

// LogToWriter prints log feed to w until context is canceled.
func (l *Logger) LogToWriter(ctx context.Context, w io.Writer) {
	feed, cancel := l.Subscribe()
	defer cancel()
	for {
		select {
		case entry, ok := <-feed:
			if !ok {
				return
			}
			fmt.Fprintln(w, formatEntry(entry))
		case <-ctx.Done():
			return
		}
	}
}

func formatEntry(entry Entry) string {
	var b strings.Builder
	b.WriteString("[" + entry.Level.String() + "] ")

	if entry.Segment != "" {
		b.WriteString(entry.Segment + ": ")
	}
	if entry.Src != "" {
		b.WriteString(strings.ToUpper(entry.Src[:1]) + entry.Src[1:] + ": ")
	}

	b.WriteString(entry.Msg)
	return b.String()
}

func (l *Logger) newEvent(level Level) *Event {
	return &Event{
		level:  level,
		time:   UnixMicro(time.Now().UnixMicro()),
		logger: l,
	}
}

// Error starts a new message with error level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Error() *Event {
	return l.newEvent(LevelError)
}

// Warn starts a new message with warn level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Warn() *Event {
	return l.newEvent(LevelWarning)
}

// Info starts a new message with info level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Info() *Event {
	return l.newEvent(LevelInfo)
}

// Debug starts a new message with debug level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Debug() *Event {
	return l.newEvent(LevelDebug)
}
