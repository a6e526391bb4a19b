package oplog

import (
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

// Category classifies engine log entries for observers.
type Category uint8

const (
	_category_beg Category = iota
	CategoryInfo
	CategoryOrder
	CategoryStop
	CategoryWarn
	CategoryError
	_category_end
)

func (c Category) IsAvailable() bool {
	return c > _category_beg && c < _category_end
}

func (c Category) String() string {
	switch c {
	case CategoryInfo:
		return "info"
	case CategoryOrder:
		return "order"
	case CategoryStop:
		return "stop"
	case CategoryWarn:
		return "warn"
	case CategoryError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is one captured log line.
type Entry struct {
	Time     time.Time
	Category Category
	Message  string
}

// Sink keeps the most recent engine log entries for snapshot publication
// and forwards everything to the process logger. Safe for concurrent use:
// feed callbacks and the tick goroutine both write to it.
type Sink struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

// NewSink creates a sink retaining at most max entries.
func NewSink(max int) *Sink {
	if max <= 0 {
		max = 64
	}

	return &Sink{max: max, entries: make([]Entry, 0, max)}
}

// Log records a categorized message.
func (s *Sink) Log(cat Category, msg string) {
	switch cat {
	case CategoryWarn:
		logs.Warnf("[%s] %s", cat, msg)
	case CategoryError:
		logs.Errorf("[%s] %s", cat, msg)
	default:
		logs.Infof("[%s] %s", cat, msg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == s.max {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:s.max-1]
	}

	s.entries = append(s.entries, Entry{
		Time:     time.Now(),
		Category: cat,
		Message:  msg,
	})
}

// Logf records a categorized formatted message.
func (s *Sink) Logf(cat Category, format string, args ...any) {
	s.Log(cat, fmt.Sprintf(format, args...))
}

// Recent returns a copy of the retained entries, oldest first.
func (s *Sink) Recent() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
