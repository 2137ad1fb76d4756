package records

import "fmt"

// Contribution is one Hansard debate contribution (a speech, written
// statement, correction or petition).
type Contribution struct {
	MemberName           string  `json:"MemberName,omitempty"`
	MemberID             int     `json:"MemberId,omitempty"`
	AttributedTo         string  `json:"AttributedTo,omitempty"`
	ItemID               int     `json:"ItemId,omitempty"`
	ContributionExtID    string  `json:"ContributionExtId,omitempty"`
	ContributionText     string  `json:"ContributionText,omitempty"`
	ContributionTextFull string  `json:"ContributionTextFull,omitempty"`
	HRSTag               string  `json:"HRSTag,omitempty"`
	HansardSection       string  `json:"HansardSection,omitempty"`
	DebateSection        string  `json:"DebateSection,omitempty"`
	DebateSectionID      int     `json:"DebateSectionId,omitempty"`
	DebateSectionExtID   string  `json:"DebateSectionExtId,omitempty"`
	SittingDate          APITime `json:"SittingDate"`
	Section              string  `json:"Section,omitempty"`
	House                string  `json:"House,omitempty"`
	OrderInDebateSection int     `json:"OrderInDebateSection,omitempty"`
	DebateSectionOrder   int     `json:"DebateSectionOrder,omitempty"`
	Rank                 int     `json:"Rank,omitempty"`

	// DebateParents is the ancestor chain attached at enrichment,
	// leaf-to-root. Empty when resolution failed.
	DebateParents []Node `json:"debate_parents,omitempty"`
}

// DocumentKey implements Document. Contributions with an external id use it
// directly; the rest fall back to a hash of section, text and position so
// the key stays stable across runs.
func (c *Contribution) DocumentKey() string {
	if c.ContributionExtID != "" {
		return fmt.Sprintf("debate_%s_contrib_%s", c.DebateSectionExtID, c.ContributionExtID)
	}
	hash := contentHash(c.DebateSectionExtID, c.ContributionText, fmt.Sprintf("%d", c.OrderInDebateSection))
	return fmt.Sprintf("debate_%s_contrib_%s", c.DebateSectionExtID, hash)
}

// Validate implements Document. Contributions without text are noise rows
// the upstream search emits for procedural entries.
func (c *Contribution) Validate() error {
	if c.ContributionTextFull == "" {
		return &ValidationError{Kind: "contribution", Reason: "empty contribution text"}
	}
	if c.DebateSectionExtID == "" {
		return &ValidationError{Kind: "contribution", Reason: "missing debate section external id"}
	}
	return nil
}

// DebateURL returns the public permalink of the containing debate.
func (c *Contribution) DebateURL() string {
	return fmt.Sprintf("https://hansard.parliament.uk/%s/%s/debates/%s/link",
		c.House, c.SittingDate.DateString(), c.DebateSectionExtID)
}

// ContributionsPage is the search endpoint's page envelope.
type ContributionsPage struct {
	Results          []Contribution `json:"Results"`
	TotalResultCount int            `json:"TotalResultCount"`
}
