package rewrite

import "fmt"

// SymbolCollisionError aborts bundling when a required rename cannot be
// performed without changing observable behavior, or when a module reference
// survives only as a runtime object the flattened program no longer has.
type SymbolCollisionError struct {
	Module string
	Symbol string
	Line   int
	Reason string
}

func (e *SymbolCollisionError) Error() string {
	msg := fmt.Sprintf("cannot safely rewrite symbol %q in module %s", e.Symbol, e.Module)
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}

	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	return msg
}
