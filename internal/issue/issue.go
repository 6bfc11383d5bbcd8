package issue

import "fmt"

// Severity classifies how a reported issue should affect the pipeline.
// warning lets the current pass proceed; error stops after the current
// phase; fatal stops immediately.
type Severity int

const (
	Warning Severity = iota
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Subject identifies the offending IR entity an issue is attached to, by
// numeric identifier rather than by reference -- analysis results reference
// program entities by number, never by pointer.
type Subject struct {
	FuncNum    int
	BlockNum   int
	InstrIndex int
	ValueNum   int
	HasInstr   bool
	HasValue   bool
}

// Issue is a single kinded violation or diagnostic, attached to the
// offending instruction/block/value without mutating any of them.
type Issue struct {
	Severity Severity
	Kind     Kind
	Message  string
	Position Position
	Length   int
	Subject  Subject
	Notes    []string
	Help     string
}

func (i Issue) String() string {
	if i.Message != "" {
		return fmt.Sprintf("%s[%s]: %s", i.Severity, i.Kind, i.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", i.Severity, i.Kind, Describe(i.Kind))
}

// Builder gives a fluent way to attach notes/help to an Issue before it is
// appended to a Tracker.
type Builder struct {
	issue Issue
}

func New(severity Severity, kind Kind, message string, pos Position) *Builder {
	return &Builder{issue: Issue{
		Severity: severity,
		Kind:     kind,
		Message:  message,
		Position: pos,
		Length:   1,
	}}
}

func (b *Builder) WithLength(length int) *Builder {
	b.issue.Length = length
	return b
}

func (b *Builder) WithSubject(s Subject) *Builder {
	b.issue.Subject = s
	return b
}

func (b *Builder) WithNote(note string) *Builder {
	b.issue.Notes = append(b.issue.Notes, note)
	return b
}

func (b *Builder) WithHelp(help string) *Builder {
	b.issue.Help = help
	return b
}

func (b *Builder) Build() Issue {
	return b.issue
}

// Tracker accumulates issues without mutating the structure under
// inspection. Every pass that discovers structural problems appends to a
// Tracker and either continues best-effort (warnings) or stops after the
// phase (errors) -- it never panics for a user-reported condition.
type Tracker struct {
	issues []Issue
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Add(i Issue) {
	t.issues = append(t.issues, i)
}

func (t *Tracker) Issues() []Issue {
	return t.issues
}

func (t *Tracker) HasErrors() bool {
	for _, i := range t.issues {
		if i.Severity >= Error {
			return true
		}
	}
	return false
}

func (t *Tracker) Reset() {
	t.issues = nil
}

// Fail reports an internal inconsistency: an analysis invariant violated
// despite a clean Checker run. This is a programmer error, not a
// recoverable user-facing condition, so it aborts the process.
func Fail(format string, args ...any) {
	panic(fmt.Sprintf("katara: internal inconsistency: "+format, args...))
}
