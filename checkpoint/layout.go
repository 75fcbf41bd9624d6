package checkpoint

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	remoteSuffix    = "remote"
	aggregateSuffix = "aggregate"
)

// Layout computes the file locations used by the coordination server for
// a single run. All files live directly under Dir.
type Layout struct {
	Dir string
}

// ParticipantFile is the destination for a checkpoint uploaded by the
// named participant during the given round. The caller address is part of
// the filename so equally named participants on different hosts cannot
// overwrite each other.
func (l Layout) ParticipantFile(name, addr string, round int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%s.%s.%d.%s", name, sanitizeAddr(addr), round, remoteSuffix))
}

// AggregateFile is the destination for the aggregation result of the
// given round.
func (l Layout) AggregateFile(round int) string {
	return filepath.Join(l.Dir, fmt.Sprintf("%d.%s", round, aggregateSuffix))
}

// Owner extracts the participant name from a path produced by
// ParticipantFile.
func Owner(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

func sanitizeAddr(addr string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || r == ':' {
			return '_'
		}
		return r
	}, addr)
}
