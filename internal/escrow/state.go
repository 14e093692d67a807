package escrow

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Clock is the source of the current time, sampled once per operation.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// State is the derived life-cycle state of a campaign.
type State int

const (
	StateOpen State = iota
	StateTimelineExpired
	StateGraceExpired
	StateCompleted
)

var stateNames = map[State]string{
	StateOpen:            "open",
	StateTimelineExpired: "timeline_expired",
	StateGraceExpired:    "grace_expired",
	StateCompleted:       "completed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	st, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState maps a state name back to its State.
func ParseState(name string) (State, error) {
	for st, n := range stateNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown campaign state %q", name)
}

// GraceEnd returns the unix second at which refunds open for an incomplete
// campaign. It saturates instead of overflowing.
func GraceEnd(timeline int64, grace time.Duration) int64 {
	secs := int64(grace / time.Second)
	if secs > 0 && timeline > math.MaxInt64-secs {
		return math.MaxInt64
	}
	return timeline + secs
}

// StateAt derives the campaign state at now. Completed takes priority over
// the time-based states; the boundaries are inclusive on the later side.
func StateAt(c Campaign, now time.Time, grace time.Duration) State {
	if c.Completed {
		return StateCompleted
	}
	ts := now.Unix()
	switch {
	case ts < c.Timeline:
		return StateOpen
	case ts < GraceEnd(c.Timeline, grace):
		return StateTimelineExpired
	default:
		return StateGraceExpired
	}
}
