package dumpdir

import "github.com/dagu-org/dumpdir/internal/reportedto"

// reportedToItem is the name of the journal item internal/reportedto
// operates on the content of.
const reportedToItem = "reported_to"

// AddReportedTo implements add_reported_to(dd, line) (spec.md C10, §4.8):
// requires the lock; idempotently appends line to the reported_to
// journal.
func (dd *DumpDir) AddReportedTo(line string) error {
	if err := dd.requireLocked("add_reported_to"); err != nil {
		return err
	}
	content, _ := dd.LoadTextExt(reportedToItem, FailQuietlyENOENT)
	updated := reportedto.AppendLine(content, line)
	if updated == content {
		return nil
	}
	return dd.SaveText(reportedToItem, updated)
}

// FindInReportedTo implements find_in_reported_to(dd, prefix) (spec.md
// §4.8): returns the parsed record of the last journal line starting with
// prefix, or nil if none matches.
func (dd *DumpDir) FindInReportedTo(prefix string) *reportedto.Record {
	content, _ := dd.LoadTextExt(reportedToItem, FailQuietlyENOENT)
	return reportedto.FindByPrefix(content, prefix)
}
