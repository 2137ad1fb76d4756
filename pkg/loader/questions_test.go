package loader

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/civicdata/registry-ingest/pkg/fetch"
	"github.com/civicdata/registry-ingest/pkg/records"
)

func questionsPayload(questions ...records.WrittenQuestion) string {
	page := records.QuestionsPage{TotalResults: len(questions)}
	for _, q := range questions {
		page.Results = append(page.Results, records.QuestionEnvelope{Value: q})
	}
	b, _ := json.Marshal(page)
	return string(b)
}

func TestQuestionsLoader_TwoPassesWithDedup(t *testing.T) {
	q1 := records.WrittenQuestion{ID: 1, QuestionText: "On school funding?"}
	q2 := records.WrittenQuestion{ID: 2, QuestionText: "On rail investment?"}
	q3 := records.WrittenQuestion{ID: 3, QuestionText: "On flood defences?", AnswerText: "Funding was allocated."}

	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		switch {
		case req.Query.Get("tabledWhenFrom") != "":
			return questionsPayload(q1, q2), nil
		case req.Query.Get("answeredWhenFrom") != "":
			// q2 shows up again once answered.
			return questionsPayload(q2, q3), nil
		default:
			t.Errorf("unexpected request: %s %v", req.URL, req.Query)
			return questionsPayload(), nil
		}
	}}
	indexer := newFakeIndexer()

	l := NewQuestionsLoader(QuestionsConfig{BaseURL: "http://api.test"}, fetcher, indexer)
	report, err := l.Load(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	keys := indexer.keys("questions")
	for _, want := range []string{"pq_1", "pq_2", "pq_3"} {
		if !keys[want] {
			t.Errorf("missing document %s, have %v", want, keys)
		}
	}
	if len(keys) != 3 {
		t.Errorf("indexed %d distinct questions, want 3", len(keys))
	}
	if report.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", report.Duplicates)
	}
}

func TestQuestionsLoader_TruncationEnrichment(t *testing.T) {
	// The list response carries expanded member objects; the detail
	// response does not, so enrichment must not lose them.
	clipped := records.WrittenQuestion{
		ID:           42,
		QuestionText: "To ask the Secretary of State...",
		Heading:      "Rural Bus Services",
		AskingMember: &records.Member{ID: 9, Name: "A. Member", Party: "Independent"},
	}
	full := records.WrittenQuestion{ID: 42, QuestionText: "To ask the Secretary of State for Transport about rural bus services"}

	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		switch {
		case strings.HasSuffix(req.URL, "/api/writtenquestions/questions/42"):
			b, _ := json.Marshal(records.QuestionDetail{Value: full})
			return string(b), nil
		case req.Query.Get("tabledWhenFrom") != "":
			return questionsPayload(clipped), nil
		default:
			return questionsPayload(), nil
		}
	}}
	indexer := newFakeIndexer()

	l := NewQuestionsLoader(QuestionsConfig{BaseURL: "http://api.test"}, fetcher, indexer)
	if _, err := l.Load(context.Background(), testWindow()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if n := fetcher.requestCount("http://api.test/api/writtenquestions/questions/42"); n != 1 {
		t.Errorf("detail endpoint called %d times, want 1", n)
	}

	docs := indexer.documents("questions")
	if len(docs) != 1 {
		t.Fatalf("indexed docs = %d, want 1", len(docs))
	}
	q := docs[0].(*records.WrittenQuestion)
	if strings.HasSuffix(q.QuestionText, "...") {
		t.Errorf("question text still truncated: %q", q.QuestionText)
	}
	if q.AskingMember == nil || q.AskingMember.Name != "A. Member" {
		t.Errorf("expanded member lost during enrichment: %+v", q.AskingMember)
	}
	if q.Heading != "Rural Bus Services" {
		t.Errorf("Heading = %q", q.Heading)
	}
}

func TestQuestionsLoader_EnrichmentFailureKeepsTruncated(t *testing.T) {
	clipped := records.WrittenQuestion{ID: 7, QuestionText: "A clipped question..."}

	fetcher := &fakeFetcher{handler: func(req fetch.Request) (string, error) {
		switch {
		case strings.HasSuffix(req.URL, "/api/writtenquestions/questions/7"):
			return "", &fetch.PermanentError{URL: req.URL, StatusCode: 404}
		case req.Query.Get("tabledWhenFrom") != "":
			return questionsPayload(clipped), nil
		default:
			return questionsPayload(), nil
		}
	}}
	indexer := newFakeIndexer()

	l := NewQuestionsLoader(QuestionsConfig{BaseURL: "http://api.test"}, fetcher, indexer)
	if _, err := l.Load(context.Background(), testWindow()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	docs := indexer.documents("questions")
	if len(docs) != 1 {
		t.Fatalf("indexed docs = %d, want 1", len(docs))
	}
	q := docs[0].(*records.WrittenQuestion)
	if q.QuestionText != "A clipped question..." {
		t.Errorf("question text = %q", q.QuestionText)
	}
}
