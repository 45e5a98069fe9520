/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sort"
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-resolvekit/log"
)

// timeSlots is encoded as a nested object with keys in sorted order.
type timeSlots map[string]int64

func (ts timeSlots) EncodeLogfObject(e logf.FieldEncoder) error {
	names := make([]string, 0, len(ts))
	for name := range ts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e.EncodeFieldInt64(name, ts[name])
	}
	return nil
}

// LoggingParams collects data that handlers and outgoing clients contribute
// to the final "response completed" entry of the Logging middleware.
// It may be updated from several goroutines, e.g. a fetch running on behalf of the request.
type LoggingParams struct {
	mu     sync.Mutex
	fields []log.Field
	slots  timeSlots
}

// ExtendFields adds fields to the final log entry.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	lp.fields = append(lp.fields, fields...)
	lp.mu.Unlock()
}

// AddTimeSlotDurationInMs adds dur (in milliseconds) to the named slot of the "time_slots" field.
// Repeated calls for the same name accumulate.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.slots == nil {
		lp.slots = make(timeSlots)
	}
	lp.slots[name] += dur.Milliseconds()
}

// snapshot returns the collected fields, with time slots appended when withSlots is set.
func (lp *LoggingParams) snapshot(withSlots bool) []log.Field {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	fields := append([]log.Field(nil), lp.fields...)
	if withSlots && len(lp.slots) != 0 {
		slots := make(timeSlots, len(lp.slots))
		for k, v := range lp.slots {
			slots[k] = v
		}
		fields = append(fields, log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: slots})
	}
	return fields
}
