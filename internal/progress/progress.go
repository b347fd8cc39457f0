// Package progress models a user's solved/starred/notes overlay and the commands
// that mutate it. Solved and starred are independent sets; adding a present id or
// removing an absent one changes nothing.
package progress

import (
	"maps"
	"slices"
	"strings"

	"github.com/sheet-tracker/backend/internal/domain"
)

// State is a user's progress overlay on the shared catalog
type State struct {
	Solved  []string
	Starred []string
	Notes   map[string]string
}

// Clone returns a deep copy so callers can keep a pre-update snapshot
func (s State) Clone() State {
	notes := maps.Clone(s.Notes)
	if notes == nil {
		notes = map[string]string{}
	}
	return State{
		Solved:  slices.Clone(s.Solved),
		Starred: slices.Clone(s.Starred),
		Notes:   notes,
	}
}

// IsSolved reports whether problemID is in the solved set
func (s State) IsSolved(problemID string) bool {
	return slices.Contains(s.Solved, problemID)
}

// IsStarred reports whether problemID is in the starred set
func (s State) IsStarred(problemID string) bool {
	return slices.Contains(s.Starred, problemID)
}

// Add appends id unless present. The input is never modified.
func Add(ids []string, id string) ([]string, bool) {
	if slices.Contains(ids, id) {
		return ids, false
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id), true
}

// Remove drops every occurrence of id. The input is never modified.
func Remove(ids []string, id string) ([]string, bool) {
	if !slices.Contains(ids, id) {
		return ids, false
	}
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out, true
}

// Dedupe drops repeated ids keeping first occurrences; used when loading stored state.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Field names the part of the state a command writes
type Field string

const (
	FieldSolved  Field = "solved"
	FieldStarred Field = "starred"
	FieldNotes   Field = "notes"
)

// Action is a toggle on one of the progress sets
type Action string

const (
	ActionSolve   Action = "solve"
	ActionUnsolve Action = "unsolve"
	ActionStar    Action = "star"
	ActionUnstar  Action = "unstar"
)

// ParseAction maps a request value to an Action; "unsolved" is accepted for unsolve.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionSolve:
		return ActionSolve, nil
	case ActionUnsolve, "unsolved":
		return ActionUnsolve, nil
	case ActionStar:
		return ActionStar, nil
	case ActionUnstar:
		return ActionUnstar, nil
	}
	return "", domain.ErrInvalidAction
}

// Command is one progress mutation
type Command interface {
	// Apply returns the next state and whether anything changed. It must not
	// modify s.
	Apply(s State) (State, bool)
	// Field is the part of the state Apply may change.
	Field() Field
	// ProblemID is the problem the command targets.
	ProblemID() string
}

// Toggle adds or removes a problem from the solved or starred set
type Toggle struct {
	Action  Action
	Problem string
}

func (t Toggle) Apply(s State) (State, bool) {
	next := s.Clone()
	var changed bool
	switch t.Action {
	case ActionSolve:
		next.Solved, changed = Add(s.Solved, t.Problem)
	case ActionUnsolve:
		next.Solved, changed = Remove(s.Solved, t.Problem)
	case ActionStar:
		next.Starred, changed = Add(s.Starred, t.Problem)
	case ActionUnstar:
		next.Starred, changed = Remove(s.Starred, t.Problem)
	}
	return next, changed
}

func (t Toggle) Field() Field {
	if t.Action == ActionStar || t.Action == ActionUnstar {
		return FieldStarred
	}
	return FieldSolved
}

func (t Toggle) ProblemID() string { return t.Problem }

// SetNote stores a note for a problem; a blank note removes it
type SetNote struct {
	Problem string
	Text    string
}

func (n SetNote) Apply(s State) (State, bool) {
	next := s.Clone()
	current, exists := s.Notes[n.Problem]
	if strings.TrimSpace(n.Text) == "" {
		if !exists {
			return next, false
		}
		delete(next.Notes, n.Problem)
		return next, true
	}
	if exists && current == n.Text {
		return next, false
	}
	next.Notes[n.Problem] = n.Text
	return next, true
}

func (n SetNote) Field() Field { return FieldNotes }

func (n SetNote) ProblemID() string { return n.Problem }

// Status is the outcome of an optimistic command
type Status string

const (
	Applied Status = "applied"
	Failed  Status = "failed"
)

// Result is either Applied with the committed state, or Failed carrying the
// pre-update state the caller rolled back to and the persistence error.
type Result struct {
	Status   Status
	Changed  bool
	State    State
	Previous State
	Err      error
}

// Succeeded reports whether the command was applied
func (r Result) Succeeded() bool {
	return r.Status == Applied
}
