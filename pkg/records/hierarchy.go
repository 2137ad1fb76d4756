package records

import "strconv"

// Node is one section in a debate hierarchy forest. Nodes for a given
// (date, chamber) pair form a forest fetched and cached as a unit.
type Node struct {
	// LocalID is only valid within one API response; it is not stable
	// across days.
	LocalID int `json:"Id"`

	// ExternalID is the stable identifier downstream records reference.
	ExternalID string `json:"ExternalId"`

	Title string `json:"Title"`

	// ParentLocalID is nil at a root.
	ParentLocalID *int `json:"ParentId"`
}

// LocalKey returns the string form of the local id, used alongside the
// external id when indexing a forest (the upstream source is inconsistent
// about which identifier downstream records reference).
func (n Node) LocalKey() string {
	return strconv.Itoa(n.LocalID)
}

// SectionTree is one tree in the sectiontrees response for a day.
type SectionTree struct {
	SectionTreeItems []Node `json:"SectionTreeItems"`
}
