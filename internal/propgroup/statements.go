package propgroup

import (
	"fmt"
)

// MapExpression returns the MATERIALIZED expression for group name: the
// JSON properties as a Map(String, String), filtered by the group's
// expression and sorted by key.
//
// Sorting gives every row the same key layout, which compresses better and
// makes map equality comparisons stable.
func (r *Registry) MapExpression(name string) (string, error) {
	def, ok := r.groups[name]
	if !ok {
		return "", newNotFoundError(name)
	}
	return r.mapExpression(def), nil
}

func (r *Registry) mapExpression(def *Definition) string {
	return fmt.Sprintf(
		"mapSort(mapFilter((key, _) -> %s, CAST(JSONExtractKeysAndValues(%s, 'String'), 'Map(String, String)')))",
		def.expression, r.target.Column)
}

// alterPrefix returns "ALTER TABLE t" with the cluster clause when set.
func (r *Registry) alterPrefix() string {
	if r.target.Cluster == "" {
		return "ALTER TABLE " + r.target.Table
	}
	return fmt.Sprintf("ALTER TABLE %s ON CLUSTER %s", r.target.Table, r.target.Cluster)
}

// AlterTableStatements returns the three statements that materialize group
// name: the derived column, then bloom filter indexes over its keys and its
// values. The statements must be applied in order.
//
// Returns a GROUP_NOT_FOUND lookup error and no statements if name is not
// registered.
func (r *Registry) AlterTableStatements(name string) ([]string, error) {
	def, ok := r.groups[name]
	if !ok {
		return nil, newNotFoundError(name)
	}

	prefix := r.alterPrefix()
	column := r.ColumnName(name)

	return []string{
		fmt.Sprintf("%s ADD COLUMN %s Map(String, String) MATERIALIZED %s CODEC(%s)",
			prefix, column, r.mapExpression(def), def.codec),
		fmt.Sprintf("%s ADD INDEX %s_keys_bf mapKeys(%s) TYPE bloom_filter",
			prefix, column, column),
		fmt.Sprintf("%s ADD INDEX %s_values_bf mapValues(%s) TYPE bloom_filter",
			prefix, column, column),
	}, nil
}

// DropTableStatements returns the statements that remove group name's
// derived column and its indexes. Indexes are dropped before the column
// they reference.
func (r *Registry) DropTableStatements(name string) ([]string, error) {
	if _, ok := r.groups[name]; !ok {
		return nil, newNotFoundError(name)
	}

	prefix := r.alterPrefix()
	column := r.ColumnName(name)

	return []string{
		fmt.Sprintf("%s DROP INDEX IF EXISTS %s_keys_bf", prefix, column),
		fmt.Sprintf("%s DROP INDEX IF EXISTS %s_values_bf", prefix, column),
		fmt.Sprintf("%s DROP COLUMN IF EXISTS %s", prefix, column),
	}, nil
}
