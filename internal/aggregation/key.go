package aggregation

import (
	"fmt"
	"time"
)

// Key identifies one digest grouping inside a tenant. Staged rows sharing
// a key are folded into a single digest section.
type Key struct {
	OrgID       string
	Bundle      string
	Application string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.OrgID, k.Bundle, k.Application)
}

// Window is the half-open time range (Start, End] one aggregation run
// covers. Start is the previous run; a row stamped exactly at Start belongs
// to the previous window.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return ts.After(w.Start) && !ts.After(w.End)
}
