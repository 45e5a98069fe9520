/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-resolvekit/log"
)

// RecordedEntry is a logged entry kept by Recorder.
type RecordedEntry struct {
	Level  log.Level
	Text   string
	Time   time.Time
	Fields []log.Field
}

// FindField returns the first field with the key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (s *entryStore) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.DerivedFields)+len(e.Fields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, RecordedEntry{
		Level:  log.FromLogfLevel(e.Level),
		Text:   e.Text,
		Time:   e.Time,
		Fields: fields,
	})
}

// Recorder is a log.FieldLogger that records every entry for inspection in tests.
// Loggers derived with With and WithLevel share the records of their parent.
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

// NewRecorder returns an empty debug-level Recorder.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store}
}

func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.store}
}

func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.store}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]RecordedEntry(nil), r.store.entries...)
}

// FindEntry returns the first entry with the message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	found := r.FindEntries(func(e RecordedEntry) bool { return e.Text == msg })
	if len(found) == 0 {
		return RecordedEntry{}, false
	}
	return found[0], true
}

// FindEntries returns all entries matching the filter.
func (r *Recorder) FindEntries(filter func(RecordedEntry) bool) []RecordedEntry {
	var found []RecordedEntry
	for _, e := range r.Entries() {
		if filter(e) {
			found = append(found, e)
		}
	}
	return found
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}
