package propgroup

import (
	"iter"
	"slices"
)

// Target addresses the column that groups are derived from.
type Target struct {
	// Cluster is the ON CLUSTER name. Empty for single-node deployments.
	Cluster string
	// Table may be database qualified (db.table).
	Table string
	// Column holds the raw JSON properties.
	Column string
}

func (t Target) validate() error {
	if t.Table == "" || !qualifiedPattern.MatchString(t.Table) {
		return configError(ErrCodeInvalidTarget, "", "invalid table name %q", t.Table)
	}
	if t.Column == "" || !identifierPattern.MatchString(t.Column) {
		return configError(ErrCodeInvalidTarget, "", "invalid column name %q", t.Column)
	}
	if t.Cluster != "" && !identifierPattern.MatchString(t.Cluster) {
		return configError(ErrCodeInvalidTarget, "", "invalid cluster name %q", t.Cluster)
	}
	return nil
}

// Registry owns the property groups of one (table, column) pair.
//
// A Registry is populated during startup and read-only afterwards. It has no
// internal locking: concurrent reads are safe, concurrent Register calls are
// not.
type Registry struct {
	target Target
	order  []string
	groups map[string]*Definition
}

// NewRegistry creates an empty registry for target.
func NewRegistry(target Target) (*Registry, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	return &Registry{
		target: target,
		groups: make(map[string]*Definition),
	}, nil
}

// Target returns the addressed table and column.
func (r *Registry) Target() Target {
	return r.target
}

// Register adds def under def.Name().
//
// A name can only be registered once. On duplicate the registry is left
// untouched and a DUPLICATE_GROUP configuration error is returned.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return configError(ErrCodeNilPredicate, "", "definition is nil")
	}
	if _, exists := r.groups[def.name]; exists {
		return configError(ErrCodeDuplicateGroup, def.name, "property group names can only be used once")
	}
	r.groups[def.name] = def
	r.order = append(r.order, def.name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Groups returns the registered group names in registration order.
func (r *Registry) Groups() []string {
	return slices.Clone(r.order)
}

// Definition returns the definition registered under name.
func (r *Registry) Definition(name string) (*Definition, bool) {
	def, ok := r.groups[name]
	return def, ok
}

// FindGroups yields the name of every group containing key, in registration
// order. Groups are not required to be mutually exclusive.
func (r *Registry) FindGroups(key string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range r.order {
			if !r.groups[name].Contains(key) {
				continue
			}
			if !yield(name) {
				return
			}
		}
	}
}

// ColumnName returns the derived column name for group name.
func (r *Registry) ColumnName(name string) string {
	return r.target.Column + "_group_" + name
}
