package activity

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an activity.
type Status int

const (
	Pending Status = iota
	Running
	Complete
	Aborted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Complete:
		return "COMPLETE"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether no further events follow this status.
func (s Status) Terminal() bool {
	return s == Complete || s == Aborted
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(s) {
	case "PENDING":
		return Pending, nil
	case "RUNNING":
		return Running, nil
	case "COMPLETE":
		return Complete, nil
	case "ABORTED":
		return Aborted, nil
	}
	return 0, fmt.Errorf("unknown activity status %q", s)
}

// Milestone tags a point of progress inside the RUNNING state.
type Milestone string

const (
	// MilestoneSlewComplete marks the mount arriving on target.
	MilestoneSlewComplete Milestone = "slew-complete"

	// MilestoneSynced marks the mount's pointing model being synced to the target.
	MilestoneSynced Milestone = "synced"
)

// Event is one entry on an activity's status channel.
type Event struct {
	// Seq is the position of the event in its channel, starting at 0.
	Seq int

	Status    Status
	Milestone Milestone

	// Note is free-form progress detail (e.g. "repointed").
	Note string

	// Err is the failure reason on an ABORTED event.
	Err error

	Time time.Time
}

func (e Event) String() string {
	s := e.Status.String()
	if e.Milestone != "" {
		s += " " + string(e.Milestone)
	}
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
