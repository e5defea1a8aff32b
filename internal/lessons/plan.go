package lessons

// Scope selects how far a mutation reaches into a recurring series.
type Scope int

const (
	// ScopeSingle targets one occurrence.
	ScopeSingle Scope = iota
	// ScopeFuture targets an occurrence and everything after it.
	ScopeFuture
)

// String returns the wire name of the scope.
func (s Scope) String() string {
	if s == ScopeFuture {
		return "future"
	}
	return "single"
}

// Action is the closed set of series mutations. Modeling edit/delete ×
// single/future as an enum keeps the planner's state machine exhaustively
// checkable instead of hiding branches behind boolean flags.
type Action int

const (
	// ActionDeleteSingle removes one occurrence.
	ActionDeleteSingle Action = iota
	// ActionDeleteFuture removes an occurrence and all later ones.
	ActionDeleteFuture
	// ActionEditSingle rewrites one occurrence.
	ActionEditSingle
	// ActionEditFuture rewrites an occurrence and all later ones.
	ActionEditFuture
)

// ActionFor maps an edit/delete flag and a scope onto the closed Action set.
func ActionFor(edit bool, scope Scope) Action {
	switch {
	case edit && scope == ScopeFuture:
		return ActionEditFuture
	case edit:
		return ActionEditSingle
	case scope == ScopeFuture:
		return ActionDeleteFuture
	default:
		return ActionDeleteSingle
	}
}

// Op is a single store write produced by the planner. The planner never
// touches the store itself; it returns the ordered writes so the integration
// layer can execute them inside one transaction (or accept partial-failure
// semantics and retry).
type Op interface {
	storeOp()
}

// UpdateSeriesOp replaces the stored series row.
type UpdateSeriesOp struct {
	Series Series
}

// InsertSeriesOp creates a new series row.
type InsertSeriesOp struct {
	Series Series
}

// DeleteSeriesOp removes a series row. Override, note and payment-link rows
// for the series are removed by the store's cascade.
type DeleteSeriesOp struct {
	SeriesID string
}

// UpsertOverrideOp writes an override row, replacing any row with the same
// key.
type UpsertOverrideOp struct {
	Override Override
}

// DeleteOverrideOp removes the override row for a key, if present.
type DeleteOverrideOp struct {
	SeriesID string
	Date     LocalDate
}

// UpsertNoteOp writes a note row, replacing any row with the same key.
type UpsertNoteOp struct {
	Note Note
}

// DeleteNoteOp removes the note row for a key, if present.
type DeleteNoteOp struct {
	SeriesID string
	Date     LocalDate
}

// MovePaymentLinksOp re-keys payment links from one occurrence key to
// another, preserving payment identity and amount. Payment links are moved,
// never dropped, when their occurrence migrates to a different series row or
// day.
type MovePaymentLinksOp struct {
	SeriesID    string
	Date        LocalDate
	NewSeriesID string
	NewDate     LocalDate
}

func (UpdateSeriesOp) storeOp()     {}
func (InsertSeriesOp) storeOp()     {}
func (DeleteSeriesOp) storeOp()     {}
func (UpsertOverrideOp) storeOp()   {}
func (DeleteOverrideOp) storeOp()   {}
func (UpsertNoteOp) storeOp()       {}
func (DeleteNoteOp) storeOp()       {}
func (MovePaymentLinksOp) storeOp() {}

// Plan is the ordered list of store writes implementing one mutation.
type Plan struct {
	Ops []Op
}

func (p *Plan) add(ops ...Op) {
	p.Ops = append(p.Ops, ops...)
}
