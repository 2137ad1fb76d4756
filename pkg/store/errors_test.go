package store

import (
	"strings"
	"testing"
)

func TestPartialBulkFailure_Error(t *testing.T) {
	err := &PartialBulkFailure{
		Collection: "contributions",
		Succeeded:  47,
		Failed:     3,
		Reasons:    []string{"document too large"},
	}
	msg := err.Error()
	if !strings.Contains(msg, "contributions") {
		t.Errorf("message missing collection: %q", msg)
	}
	if !strings.Contains(msg, "3 of 50") {
		t.Errorf("message missing counts: %q", msg)
	}
}
