package store

import "fmt"

// PartialBulkFailure reports a bulk write where some documents landed and
// some did not. Succeeded + Failed equals the batch size.
type PartialBulkFailure struct {
	Collection string
	Succeeded  int
	Failed     int

	// FailedKeys are the document keys the store rejected.
	FailedKeys []string

	// Reasons holds a sample of per-document error messages, at most a
	// handful, for the log line.
	Reasons []string
}

func (e *PartialBulkFailure) Error() string {
	return fmt.Sprintf("bulk write to %s: %d of %d documents failed",
		e.Collection, e.Failed, e.Succeeded+e.Failed)
}
