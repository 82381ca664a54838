package vault

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// DiffStat counts changed lines between two versions of a file.
type DiffStat struct {
	Added   int
	Removed int
}

func (d DiffStat) String() string {
	return fmt.Sprintf("+%d -%d lines", d.Added, d.Removed)
}

// Diff compares two versions line by line. A missing final newline is not
// counted as a change.
func Diff(name, before, after string) DiffStat {
	before, after = withNewline(before), withNewline(after)
	edits := myers.ComputeEdits(span.URIFromPath(name), before, after)
	unified := gotextdiff.ToUnified(name, name, before, edits)

	var d DiffStat
	for _, h := range unified.Hunks {
		for _, l := range h.Lines {
			switch l.Kind {
			case gotextdiff.Insert:
				d.Added++
			case gotextdiff.Delete:
				d.Removed++
			}
		}
	}
	return d
}

func withNewline(s string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}
