// Package tracing emits Chrome trace-event JSON for operations an
// operator might want to see on a timeline. No other package in this
// module calls it: neither the zipdevice "Debug" trace-flush bit nor
// the image store emits events through it. With no sink attached,
// Event/Done calls are free.
package tracing

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = ioutil.Discard
)

// Sink writes all following Event()s as a Chrome trace event file into w.
func Sink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	w.Write([]byte{'['}) // start the JSON array format; trailing ']' is optional
}

// Enable creates a file in $TMPDIR/ripstore.traces/prefix.$PID and sinks
// events there.
func Enable(prefix string) error {
	fn := filepath.Join(os.TempDir(), "ripstore.traces", fmt.Sprintf("%s.%d", prefix, os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	Sink(f)
	return nil
}

// PendingEvent is a started, not-yet-finished trace event.
type PendingEvent struct {
	Name           string      `json:"name"`
	Categories     string      `json:"cat"`
	Type           string      `json:"ph"`
	ClockTimestamp uint64      `json:"ts"`
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"`
	Tid            uint64      `json:"tid"`
	Args           interface{} `json:"args"`

	start time.Time
}

// Done finalizes and emits the event.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[tracing] %v", err)
	}
}

// Event starts a trace event named name on logical track tid (e.g. a
// plane index or a zip device id).
func Event(name string, tid int, cat string) *PendingEvent {
	return &PendingEvent{
		Name:           name,
		Categories:     cat,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Tid:            uint64(tid),
		start:          time.Now(),
	}
}
