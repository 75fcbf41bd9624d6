// Package checkpoint defines the on-disk model checkpoint format and the
// directory layout the coordination server uses for per-round files.
//
// A checkpoint is a JSON document mapping parameter names to numeric
// tensors. Participant uploads are stored as "{name}.{addr}.{round}.remote"
// and aggregation results as "{round}.aggregate", both directly under a
// single save directory.
package checkpoint
