package manifest

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/propgroups/internal/propgroup"
)

// Planned is a migration with its statements generated.
type Planned struct {
	Name       string   `json:"name"`
	Order      int      `json:"order"`
	Statements []string `json:"statements"`
}

// PlanError reports a step that cannot be generated.
type PlanError struct {
	Migration string
	Step      int
	Err       error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("migration %q step %d: %v", e.Migration, e.Step, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// Plan generates the statements for migrations, ordered by (Order, Name).
// registries maps table name to the registry of groups on that table.
//
// Plan is deterministic: the same manifests and registries yield the same
// output, byte for byte.
func Plan(migrations []Migration, registries map[string]*propgroup.Registry) ([]Planned, error) {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.Name, b.Name))
	})

	planned := make([]Planned, 0, len(sorted))
	for _, m := range sorted {
		p := Planned{Name: m.Name, Order: m.Order}
		for i, step := range m.Steps {
			statements, err := planStep(step, registries)
			if err != nil {
				return nil, &PlanError{Migration: m.Name, Step: i, Err: err}
			}
			p.Statements = append(p.Statements, statements...)
		}
		planned = append(planned, p)
	}
	return planned, nil
}

func planStep(step Step, registries map[string]*propgroup.Registry) ([]string, error) {
	r, ok := registries[step.Table]
	if !ok {
		return nil, fmt.Errorf("no property groups configured for table %q", step.Table)
	}
	switch step.Action {
	case ActionCreate, "":
		return r.AlterTableStatements(step.Group)
	case ActionDrop:
		return r.DropTableStatements(step.Group)
	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
}
