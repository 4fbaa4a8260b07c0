// Package keyfilter parses and evaluates the fragment of the ClickHouse
// expression language used by property group filters.
//
// Group filters are written as ClickHouse text because they run inside a
// MATERIALIZED column expression. The Go predicate next to each filter is
// hand written, so nothing ties the two together at compile time. This
// package is the reference interpreter that lets tests evaluate the filter
// text itself against the same keys the predicate sees.
//
// SUPPORTED FRAGMENT:
//
//	expr   := or
//	or     := and ("OR" and)*
//	and    := not ("AND" not)*
//	not    := "NOT" not | atom
//	atom   := "(" expr ")"
//	        | call
//	        | "key" ["NOT"] ("LIKE" | "ILIKE") string
//	        | "key" ["NOT"] "IN" "(" string ("," string)* ")"
//	        | "key" ("=" | "==" | "!=" | "<>") string
//	        | "1" | "0" | "true" | "false"
//	call   := ("startsWith" | "endsWith") "(" "key" "," string ")"
//
// Keywords are case insensitive, function names are not (as in ClickHouse).
// The only identifier is `key`, the lambda parameter bound by mapFilter.
//
// LIKE follows ClickHouse: `%` matches any sequence, `_` any single
// character, and a backslash escapes the character after it. A pattern
// ending in an unescaped backslash is a syntax error. ILIKE folds case
// before matching.
//
// Expressions are a sealed interface: only types in this package implement
// Expr, so evaluators can switch exhaustively.
package keyfilter
