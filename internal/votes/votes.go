// Package votes holds the optimistic vote model for a single movie: the
// viewer's click is translated into a local state change plus the intent
// sent to the backend, and backend snapshots replace the local state outright.
package votes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Direction is the viewer's own vote on a movie.
type Direction int

const (
	None     Direction = 0
	Positive Direction = 1
	Negative Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "none"
	}
}

// MarshalJSON encodes the direction the way the vote endpoint reports it:
// null, 1 or -1.
func (d Direction) MarshalJSON() ([]byte, error) {
	if d == None {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(d))), nil
}

// UnmarshalJSON accepts null, 1, -1, "up" and "down".
func (d *Direction) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`, "0":
		*d = None
		return nil
	case "1", `"up"`, `"upvote"`:
		*d = Positive
		return nil
	case "-1", `"down"`, `"downvote"`:
		*d = Negative
		return nil
	}
	return fmt.Errorf("votes: invalid direction %s", string(data))
}

// Action is a viewer-initiated click.
type Action int

const (
	Upvote Action = iota + 1
	Downvote
)

func (a Action) String() string {
	switch a {
	case Upvote:
		return "upvote"
	case Downvote:
		return "downvote"
	default:
		return "unknown"
	}
}

// ParseAction accepts "upvote"/"up" and "downvote"/"down" in any case.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upvote", "up":
		return Upvote, nil
	case "downvote", "down":
		return Downvote, nil
	}
	return 0, fmt.Errorf("votes: invalid action %q", s)
}

// Intent is what the remote vote endpoint receives as voteType.
type Intent string

const (
	IntentUpvote   Intent = "upvote"
	IntentDownvote Intent = "downvote"
	IntentRemove   Intent = "remove"
)

// Valid reports whether i is one of the three intents the backend accepts.
func (i Intent) Valid() bool {
	return i == IntentUpvote || i == IntentDownvote || i == IntentRemove
}

// Direction is the viewer direction the backend holds once it applies i.
func (i Intent) Direction() Direction {
	switch i {
	case IntentUpvote:
		return Positive
	case IntentDownvote:
		return Negative
	default:
		return None
	}
}

// State is the local view of one movie's counts and the viewer's vote.
type State struct {
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	Viewer    Direction `json:"viewer_vote"`
}

// Net is upvotes minus downvotes.
func (s State) Net() int {
	return s.Upvotes - s.Downvotes
}

// Label renders the net score the way the vote control shows it.
func (s State) Label() string {
	return FormatNet(s.Net())
}

// FormatNet renders n as "+n" when n >= 0 and "-n" otherwise.
func FormatNet(n int) string {
	if n >= 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Transition is one row of the vote table.
type Transition struct {
	Viewer    Direction
	DeltaUp   int
	DeltaDown int
	Intent    Intent
}

// NetDelta is the change the transition makes to the net score.
func (t Transition) NetDelta() int {
	return t.DeltaUp - t.DeltaDown
}

// Next returns the transition for a click given the viewer's current vote.
// Clicking the active direction removes the vote; clicking the opposite
// direction flips it and adjusts both counters at once.
func Next(current Direction, a Action) Transition {
	switch a {
	case Upvote:
		switch current {
		case Positive:
			return Transition{Viewer: None, DeltaUp: -1, Intent: IntentRemove}
		case Negative:
			return Transition{Viewer: Positive, DeltaUp: 1, DeltaDown: -1, Intent: IntentUpvote}
		default:
			return Transition{Viewer: Positive, DeltaUp: 1, Intent: IntentUpvote}
		}
	case Downvote:
		switch current {
		case Negative:
			return Transition{Viewer: None, DeltaDown: -1, Intent: IntentRemove}
		case Positive:
			return Transition{Viewer: Negative, DeltaUp: -1, DeltaDown: 1, Intent: IntentDownvote}
		default:
			return Transition{Viewer: Negative, DeltaDown: 1, Intent: IntentDownvote}
		}
	}
	return Transition{Viewer: current}
}

// Apply returns the state after a click and the intent to send. Counters
// never go below zero even when s came from an inconsistent snapshot.
func Apply(s State, a Action) (State, Intent) {
	t := Next(s.Viewer, a)
	return State{
		Upvotes:   clamp(s.Upvotes + t.DeltaUp),
		Downvotes: clamp(s.Downvotes + t.DeltaDown),
		Viewer:    t.Viewer,
	}, t.Intent
}

// Viewer is the part of a session the vote control needs.
type Viewer interface {
	Authenticated() bool
}

// ApplyFor is Apply guarded by the viewer's session. Without an
// authenticated viewer the control is inert: s is returned as is and ok is false.
func ApplyFor(v Viewer, s *State, a Action) (next *State, intent Intent, ok bool) {
	if s == nil || v == nil || !v.Authenticated() {
		return s, "", false
	}
	applied, intent := Apply(*s, a)
	return &applied, intent, true
}

// Reconcile replaces the local prediction with the backend's snapshot.
// Nothing from local survives.
func Reconcile(_, authoritative State) State {
	return authoritative
}

// Result is the vote endpoint's response body.
type Result struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Score     int `json:"score"`
}

// Snapshot turns a vote response into an authoritative state. The viewer
// direction is the one the acknowledged intent leaves behind.
func (r Result) Snapshot(i Intent) State {
	return State{
		Upvotes:   clamp(r.Upvotes),
		Downvotes: clamp(r.Downvotes),
		Viewer:    i.Direction(),
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

var (
	_ json.Marshaler   = Direction(0)
	_ json.Unmarshaler = (*Direction)(nil)
)
