package rewrite

import (
	"strconv"
	"strings"

	"github.com/tinovyatkin/serpen/internal/graph"
)

// SymbolTable maps each module's original top-level names to their final
// bundled names. Entries are assigned once, in emission order, and never
// change afterwards.
type SymbolTable struct {
	final map[int]map[string]string
	taken map[string]bool
}

// newSymbolTable assigns collision-safe names for every module in emission
// order. reserved holds names already claimed by the hoisted external import
// block; a defined symbol colliding with one of those is renamed too.
func newSymbolTable(g *graph.Graph, order []int, reserved []string) *SymbolTable {
	table := &SymbolTable{
		final: make(map[int]map[string]string, len(order)),
		taken: make(map[string]bool, len(reserved)),
	}

	for _, name := range reserved {
		table.taken[name] = true
	}

	for _, id := range order {
		node := g.Node(id)
		moduleFinal := make(map[string]string)

		for _, name := range node.Module.DefinedNames() {
			final := name
			if table.taken[final] {
				final = table.rename(name, node.Module.Name)
			}

			table.taken[final] = true
			moduleFinal[name] = final
		}

		table.final[id] = moduleFinal
	}

	return table
}

// Final returns the bundled name for a module's symbol. Names the module
// does not define pass through unchanged; they either resolve through the
// hoisted import block or were never renamed.
func (t *SymbolTable) Final(moduleID int, name string) string {
	if moduleFinal, ok := t.final[moduleID]; ok {
		if final, renamed := moduleFinal[name]; renamed {
			return final
		}
	}

	return name
}

// Defines reports whether the module binds the name at top level through a
// definition or assignment.
func (t *SymbolTable) Defines(moduleID int, name string) bool {
	_, ok := t.final[moduleID][name]

	return ok
}

// Renamed reports whether the module's symbol carries a different bundled
// name.
func (t *SymbolTable) Renamed(moduleID int, name string) bool {
	return t.Final(moduleID, name) != name
}

// rename derives a free name by qualifying with the owning module's dotted
// path, falling back to numeric suffixes in the unlikely event of a clash.
func (t *SymbolTable) rename(name, moduleName string) string {
	suffix := strings.NewReplacer(".", "_", "-", "_").Replace(moduleName)
	candidate := name + "__" + suffix

	for i := 2; t.taken[candidate]; i++ {
		candidate = name + "__" + suffix + "_" + strconv.Itoa(i)
	}

	return candidate
}
