// Package propgroup materializes groups of event property keys as derived
// ClickHouse columns.
//
// A Registry is bound to one (table, column) pair where the column holds a
// JSON object of event properties. Each registered Definition classifies
// property keys twice:
//
//   - in process, with a Go predicate (used by FindGroups and tests)
//   - inside ClickHouse, with a filter expression over the lambda variable
//     `key` (used by the MATERIALIZED column expression)
//
// The two forms must agree for every key. The registry cannot check that;
// internal/conformance does.
//
// GENERATED DDL:
//
// For a group named N on table T, column C, AlterTableStatements(N) returns:
//
//	ALTER TABLE T [ON CLUSTER X] ADD COLUMN C_group_N Map(String, String) MATERIALIZED <expr> CODEC(<codec>)
//	ALTER TABLE T [ON CLUSTER X] ADD INDEX C_group_N_keys_bf mapKeys(C_group_N) TYPE bloom_filter
//	ALTER TABLE T [ON CLUSTER X] ADD INDEX C_group_N_values_bf mapValues(C_group_N) TYPE bloom_filter
//
// where <expr> is
//
//	mapSort(mapFilter((key, _) -> <filter>, CAST(JSONExtractKeysAndValues(C, 'String'), 'Map(String, String)')))
//
// Output is a pure function of registry state, so migration files generated
// from it diff cleanly.
//
// LIFECYCLE:
//
// Registries are built once at startup (see NewEventsRegistry) and passed to
// whatever generates migrations. There is no removal or mutation API; a group
// is evolved by registering a new name and dropping the old column with
// DropTableStatements.
package propgroup
