// Package output renders camhub-cli results as a table, JSON or YAML.
//
// Table output derives columns from json struct tags; a `table:"wide"`
// tag hides a column unless wide mode is on and `table:"-"` always
// hides it.
package output
