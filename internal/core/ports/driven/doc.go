// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): embedding providers, language models,
// document converters and the session store.
package driven
