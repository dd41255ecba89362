package votes

import (
	"encoding/json"
	"testing"
)

type viewer bool

func (v viewer) Authenticated() bool { return bool(v) }

func TestNext_Table(t *testing.T) {
	tests := []struct {
		current Direction
		action  Action
		want    Transition
	}{
		{None, Upvote, Transition{Viewer: Positive, DeltaUp: 1, Intent: IntentUpvote}},
		{None, Downvote, Transition{Viewer: Negative, DeltaDown: 1, Intent: IntentDownvote}},
		{Positive, Upvote, Transition{Viewer: None, DeltaUp: -1, Intent: IntentRemove}},
		{Positive, Downvote, Transition{Viewer: Negative, DeltaUp: -1, DeltaDown: 1, Intent: IntentDownvote}},
		{Negative, Downvote, Transition{Viewer: None, DeltaDown: -1, Intent: IntentRemove}},
		{Negative, Upvote, Transition{Viewer: Positive, DeltaUp: 1, DeltaDown: -1, Intent: IntentUpvote}},
	}

	for _, tt := range tests {
		t.Run(tt.current.String()+"_"+tt.action.String(), func(t *testing.T) {
			got := Next(tt.current, tt.action)
			if got != tt.want {
				t.Errorf("Next(%v, %v) = %+v, want %+v", tt.current, tt.action, got, tt.want)
			}
		})
	}
}

func TestApply_ToggleReturnsToStart(t *testing.T) {
	starts := []State{
		{Upvotes: 0, Downvotes: 0},
		{Upvotes: 10, Downvotes: 2},
		{Upvotes: 3, Downvotes: 40},
	}

	for _, start := range starts {
		once, _ := Apply(start, Upvote)
		twice, intent := Apply(once, Upvote)

		if twice != start {
			t.Errorf("double upvote from %+v gave %+v", start, twice)
		}
		if intent != IntentRemove {
			t.Errorf("expected second click to send remove, got %s", intent)
		}
	}
}

func TestApply_FlipIsOneStep(t *testing.T) {
	start := State{Upvotes: 5, Downvotes: 5}
	up, _ := Apply(start, Upvote)
	if up.Viewer != Positive {
		t.Fatalf("expected Positive after upvote, got %v", up.Viewer)
	}

	down, intent := Apply(up, Downvote)
	if down.Viewer != Negative {
		t.Errorf("expected Negative after flip, got %v", down.Viewer)
	}
	if down.Upvotes-up.Upvotes != -1 || down.Downvotes-up.Downvotes != 1 {
		t.Errorf("expected Δup=-1 Δdown=+1, got %+v -> %+v", up, down)
	}
	if intent != IntentDownvote {
		t.Errorf("expected downvote intent, got %s", intent)
	}
}

func TestApply_Scenario(t *testing.T) {
	s := State{Upvotes: 10, Downvotes: 2, Viewer: None}

	steps := []struct {
		action Action
		want   State
		intent Intent
	}{
		{Upvote, State{11, 2, Positive}, IntentUpvote},
		{Upvote, State{10, 2, None}, IntentRemove},
		{Downvote, State{10, 3, Negative}, IntentDownvote},
		{Upvote, State{11, 2, Positive}, IntentUpvote},
	}

	for i, step := range steps {
		var intent Intent
		s, intent = Apply(s, step.action)
		if s != step.want {
			t.Fatalf("step %d: got %+v, want %+v", i+1, s, step.want)
		}
		if intent != step.intent {
			t.Fatalf("step %d: got intent %s, want %s", i+1, intent, step.intent)
		}
	}
}

func TestApply_NetScoreIsSumOfDeltas(t *testing.T) {
	sequence := []Action{Upvote, Downvote, Downvote, Upvote, Upvote, Downvote, Upvote, Upvote}
	s := State{Upvotes: 7, Downvotes: 4}
	expected := s.Net()

	for _, a := range sequence {
		expected += Next(s.Viewer, a).NetDelta()
		s, _ = Apply(s, a)
		if s.Net() != expected {
			t.Fatalf("after %v: net %d, want %d", a, s.Net(), expected)
		}
	}
}

func TestApply_NeverNegative(t *testing.T) {
	// A snapshot that claims a positive viewer vote with zero upvotes
	s := State{Upvotes: 0, Downvotes: 0, Viewer: Positive}
	got, intent := Apply(s, Upvote)

	if got.Upvotes != 0 {
		t.Errorf("expected upvotes clamped at 0, got %d", got.Upvotes)
	}
	if got.Viewer != None || intent != IntentRemove {
		t.Errorf("expected removal, got %+v %s", got, intent)
	}
}

func TestApplyFor_UnauthenticatedIsInert(t *testing.T) {
	s := &State{Upvotes: 1, Downvotes: 1}

	next, intent, ok := ApplyFor(viewer(false), s, Upvote)
	if ok {
		t.Error("expected ok=false for unauthenticated viewer")
	}
	if next != s {
		t.Error("expected the same state pointer back")
	}
	if intent != "" {
		t.Errorf("expected no intent, got %q", intent)
	}
	if *s != (State{Upvotes: 1, Downvotes: 1}) {
		t.Errorf("state was mutated: %+v", *s)
	}

	next, _, ok = ApplyFor(nil, s, Upvote)
	if ok || next != s {
		t.Error("expected nil viewer to be treated as unauthenticated")
	}
}

func TestApplyFor_Authenticated(t *testing.T) {
	s := &State{Upvotes: 1}
	next, intent, ok := ApplyFor(viewer(true), s, Downvote)

	if !ok {
		t.Fatal("expected ok=true")
	}
	if next == s {
		t.Error("expected a new state value")
	}
	if *next != (State{Upvotes: 1, Downvotes: 1, Viewer: Negative}) || intent != IntentDownvote {
		t.Errorf("unexpected result %+v %s", *next, intent)
	}
}

func TestReconcile_TakesAuthoritative(t *testing.T) {
	locals := []State{
		{},
		{Upvotes: 99, Downvotes: 1, Viewer: Positive},
		{Upvotes: 3, Downvotes: 8, Viewer: Negative},
	}
	auth := State{Upvotes: 4, Downvotes: 2, Viewer: None}

	for _, local := range locals {
		if got := Reconcile(local, auth); got != auth {
			t.Errorf("Reconcile(%+v) = %+v, want %+v", local, got, auth)
		}
	}
}

func TestResult_Snapshot(t *testing.T) {
	r := Result{Upvotes: 12, Downvotes: 3, Score: 9}

	if got := r.Snapshot(IntentUpvote); got != (State{12, 3, Positive}) {
		t.Errorf("unexpected snapshot %+v", got)
	}
	if got := r.Snapshot(IntentRemove); got.Viewer != None {
		t.Errorf("expected remove to leave no vote, got %v", got.Viewer)
	}
}

func TestFormatNet(t *testing.T) {
	tests := map[int]string{0: "+0", 5: "+5", -3: "-3"}
	for n, want := range tests {
		if got := FormatNet(n); got != want {
			t.Errorf("FormatNet(%d) = %q, want %q", n, got, want)
		}
	}
	if (State{Upvotes: 1, Downvotes: 4}).Label() != "-3" {
		t.Error("expected Label to use FormatNet")
	}
}

func TestParseAction(t *testing.T) {
	for _, in := range []string{"up", "UPVOTE", " upvote "} {
		if a, err := ParseAction(in); err != nil || a != Upvote {
			t.Errorf("ParseAction(%q) = %v, %v", in, a, err)
		}
	}
	for _, in := range []string{"down", "Downvote"} {
		if a, err := ParseAction(in); err != nil || a != Downvote {
			t.Errorf("ParseAction(%q) = %v, %v", in, a, err)
		}
	}
	if _, err := ParseAction("sideways"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestDirection_JSON(t *testing.T) {
	tests := []struct {
		dir  Direction
		wire string
	}{
		{None, "null"},
		{Positive, "1"},
		{Negative, "-1"},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.dir)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.dir, err)
		}
		if string(data) != tt.wire {
			t.Errorf("marshal %v = %s, want %s", tt.dir, data, tt.wire)
		}
	}

	var body struct {
		Vote Direction `json:"vote"`
	}
	for wire, want := range map[string]Direction{`"up"`: Positive, `"down"`: Negative, `null`: None, `-1`: Negative} {
		if err := json.Unmarshal([]byte(`{"vote":`+wire+`}`), &body); err != nil {
			t.Fatalf("unmarshal %s: %v", wire, err)
		}
		if body.Vote != want {
			t.Errorf("unmarshal %s = %v, want %v", wire, body.Vote, want)
		}
	}

	if err := json.Unmarshal([]byte(`{"vote":2}`), &body); err == nil {
		t.Error("expected error for direction 2")
	}
}

func TestIntent(t *testing.T) {
	if !IntentRemove.Valid() || Intent("flip").Valid() {
		t.Error("unexpected Valid result")
	}
	if IntentDownvote.Direction() != Negative || IntentRemove.Direction() != None {
		t.Error("unexpected intent direction")
	}
}
