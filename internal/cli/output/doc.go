// Package output renders command results for the forkhttpd CLI.
//
// Results are written as an aligned table, JSON or YAML. Tables take
// either a *Table, a slice of Pair or a struct, whose yaml tags name the
// rows.
package output
