package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultTailCapacity = 1000
	defaultTailPageSize = 50
	maxTailPageSize     = 200
)

type TailEntry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

type TailQuery struct {
	MinLevel zapcore.Level
	Since    time.Time
	Keyword  string
	Page     int
	PageSize int
}

// Tail keeps the most recent log entries in a fixed ring so operators can read them over HTTP.
type Tail struct {
	mu       sync.RWMutex
	entries  []TailEntry
	capacity int
	next     int
	count    int
	seq      int64
}

func NewTail(capacity int) *Tail {
	if capacity <= 0 {
		capacity = DefaultTailCapacity
	}
	return &Tail{
		entries:  make([]TailEntry, capacity),
		capacity: capacity,
	}
}

// Attach tees every entry base writes into the tail.
func Attach(base *zap.Logger, tail *Tail) *zap.Logger {
	if base == nil || tail == nil {
		return base
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &tailCore{Core: core, tail: tail}
	}))
}

// Query returns matching entries newest first, with the total match count.
func (t *Tail) Query(q TailQuery) ([]TailEntry, int64, int, int) {
	page, pageSize := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultTailPageSize
	}
	if pageSize > maxTailPageSize {
		pageSize = maxTailPageSize
	}
	if t == nil {
		return []TailEntry{}, 0, page, pageSize
	}

	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	matched := make([]TailEntry, 0)
	for _, entry := range t.newestFirst() {
		level, err := zapcore.ParseLevel(entry.Level)
		if err == nil && level < q.MinLevel {
			continue
		}
		if !q.Since.IsZero() && entry.Timestamp.Before(q.Since.UTC()) {
			continue
		}
		if keyword != "" && !entryMatches(entry, keyword) {
			continue
		}
		matched = append(matched, entry)
	}

	total := int64(len(matched))
	if page-1 >= (len(matched)+pageSize-1)/pageSize {
		return []TailEntry{}, total, page, pageSize
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, page, pageSize
}

func entryMatches(entry TailEntry, keyword string) bool {
	if strings.Contains(strings.ToLower(entry.Message), keyword) {
		return true
	}
	if strings.Contains(strings.ToLower(entry.Caller), keyword) {
		return true
	}
	return len(entry.Fields) > 0 && strings.Contains(strings.ToLower(fmt.Sprintf("%v", entry.Fields)), keyword)
}

func (t *Tail) add(entry zapcore.Entry, fields []zapcore.Field) {
	item := TailEntry{
		Timestamp: entry.Time.UTC(),
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Caller:    entry.Caller.TrimmedPath(),
		Fields:    fieldsToMap(SanitizeFields(fields)),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	item.ID = t.seq
	t.entries[t.next] = item
	t.next = (t.next + 1) % t.capacity
	if t.count < t.capacity {
		t.count++
	}
}

func fieldsToMap(fields []zapcore.Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return nil
	}
	return enc.Fields
}

func (t *Tail) newestFirst() []TailEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]TailEntry, 0, t.count)
	for i := 0; i < t.count; i++ {
		idx := t.next - 1 - i
		if idx < 0 {
			idx += t.capacity
		}
		out = append(out, t.entries[idx])
	}
	return out
}

type tailCore struct {
	zapcore.Core
	tail *Tail
}

func (c *tailCore) With(fields []zapcore.Field) zapcore.Core {
	return &tailCore{Core: c.Core.With(fields), tail: c.tail}
}

func (c *tailCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(entry, nil) == nil {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *tailCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	c.tail.add(entry, fields)
	return c.Core.Write(entry, fields)
}
