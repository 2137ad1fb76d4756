package records

import (
	"fmt"
	"strings"
)

// Member is the asking or answering member attached to a question.
type Member struct {
	ID         int    `json:"id"`
	Name       string `json:"name,omitempty"`
	Party      string `json:"party,omitempty"`
	MemberFrom string `json:"memberFrom,omitempty"`
}

// WrittenQuestion is one parliamentary written question with its answer.
type WrittenQuestion struct {
	ID                int     `json:"id"`
	AskingMemberID    int     `json:"askingMemberId"`
	AskingMember      *Member `json:"askingMember,omitempty"`
	House             string  `json:"house"`
	DateTabled        APITime `json:"dateTabled"`
	DateForAnswer     APITime `json:"dateForAnswer,omitempty"`
	UIN               string  `json:"uin,omitempty"`
	QuestionText      string  `json:"questionText,omitempty"`
	AnsweringBodyID   int     `json:"answeringBodyId"`
	AnsweringBodyName string  `json:"answeringBodyName,omitempty"`
	IsWithdrawn       bool    `json:"isWithdrawn"`
	IsNamedDay        bool    `json:"isNamedDay"`
	AnsweringMemberID int     `json:"answeringMemberId,omitempty"`
	AnsweringMember   *Member `json:"answeringMember,omitempty"`
	DateAnswered      APITime `json:"dateAnswered,omitempty"`
	AnswerText        string  `json:"answerText,omitempty"`
	Heading           string  `json:"heading,omitempty"`
}

// DocumentKey implements Document.
func (q *WrittenQuestion) DocumentKey() string {
	return fmt.Sprintf("pq_%d", q.ID)
}

// Validate implements Document.
func (q *WrittenQuestion) Validate() error {
	if q.ID == 0 {
		return &ValidationError{Kind: "written-question", Reason: "missing question id"}
	}
	return nil
}

// IsTruncated reports whether the list endpoint clipped the question or
// answer text. The full text must then be fetched per question.
func (q *WrittenQuestion) IsTruncated() bool {
	return strings.HasSuffix(q.QuestionText, "...") || strings.HasSuffix(q.AnswerText, "...")
}

// QuestionEnvelope wraps one question in the list response.
type QuestionEnvelope struct {
	Value WrittenQuestion `json:"value"`
}

// QuestionsPage is the list endpoint's page envelope.
type QuestionsPage struct {
	Results      []QuestionEnvelope `json:"results"`
	TotalResults int                `json:"totalResults"`
}

// Questions extracts the questions from the envelopes.
func (p *QuestionsPage) Questions() []WrittenQuestion {
	out := make([]WrittenQuestion, 0, len(p.Results))
	for _, item := range p.Results {
		out = append(out, item.Value)
	}
	return out
}

// QuestionDetail is the single-question endpoint's envelope.
type QuestionDetail struct {
	Value WrittenQuestion `json:"value"`
}
