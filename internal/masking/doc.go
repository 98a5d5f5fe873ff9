// Package masking redacts sensitive substrings in log messages.
//
// Presets bind a detection expression to a default strategy. Option strings
// override presets or add custom rules, producing an ActiveSet that a
// Pipeline applies to each message in order. Masker publishes reloaded sets
// atomically for concurrent renderers.
package masking
