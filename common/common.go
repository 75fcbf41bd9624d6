// Package common holds build-level identifiers shared by all binaries.
package common

// PackageName is the short service identifier used as the log and metric
// namespace.
const PackageName = "nimsfl"

// Version is overridden at build time via -ldflags.
var Version = "dev"
