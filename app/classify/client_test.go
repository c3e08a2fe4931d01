package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"regscanner/app/feed"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode chat request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassify_ParsesAndValidates(t *testing.T) {
	content := `{"items": [
		{"index": 0, "relevant": true, "domain": "antitrust", "jurisdiction": "US", "risk_score": 7.5, "update_type": "Enforcement", "summary": "FTC action."},
		{"index": 1, "relevant": false, "jurisdiction": "", "risk_score": 15, "update_type": "Rule", "summary": "Not relevant."},
		{"index": 9, "relevant": true, "jurisdiction": "US", "risk_score": 5, "update_type": "Rule", "summary": "Out of range."},
		{"index": 0, "relevant": true, "jurisdiction": "US", "risk_score": 5, "update_type": "Rule", "summary": "Duplicate index."}
	]}`
	server := chatServer(t, content)
	defer server.Close()

	client := NewClient(server.URL, "test-model", "test-key")
	results, err := client.Classify(context.Background(), Request{
		Items: []feed.Item{
			{Title: "FTC Sues Example Corp", PubDate: time.Now()},
			{Title: "Unrelated Item", PubDate: time.Now()},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 valid results (out-of-range and duplicate dropped), got %d", len(results))
	}
	if results[0].UpdateType != "Enforcement" {
		t.Errorf("Unexpected update type: '%s'", results[0].UpdateType)
	}
	// Risk clamped to 10, empty jurisdiction normalized
	if results[1].RiskScore != 10 {
		t.Errorf("Expected clamped risk score 10, got %v", results[1].RiskScore)
	}
	if results[1].Jurisdiction != "Unknown" {
		t.Errorf("Expected normalized jurisdiction, got '%s'", results[1].Jurisdiction)
	}
}

func TestClassify_MarkdownFencedJSON(t *testing.T) {
	content := "```json\n{\"items\": [{\"index\": 0, \"relevant\": true, \"jurisdiction\": \"EU\", \"risk_score\": 3, \"update_type\": \"Guidance\", \"summary\": \"ok\"}]}\n```"
	server := chatServer(t, content)
	defer server.Close()

	client := NewClient(server.URL, "test-model", "")
	results, err := client.Classify(context.Background(), Request{
		Items: []feed.Item{{Title: "EDPB Publishes Guidance On Transfers"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Jurisdiction != "EU" {
		t.Errorf("Unexpected results: %+v", results)
	}
}

func TestClassify_InvalidUpdateTypeDropped(t *testing.T) {
	content := `{"items": [{"index": 0, "relevant": true, "jurisdiction": "US", "risk_score": 5, "update_type": "Banana", "summary": "bad"}]}`
	server := chatServer(t, content)
	defer server.Close()

	client := NewClient(server.URL, "test-model", "")
	results, err := client.Classify(context.Background(), Request{
		Items: []feed.Item{{Title: "Some Item Title Goes Here"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("Expected invalid enum value dropped, got %+v", results)
	}
}

func TestClassify_EmptyBatchSkipsCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model", "")
	results, err := client.Classify(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if results != nil || called {
		t.Error("Empty batch should not reach the endpoint")
	}
}

func TestClassify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model", "")
	_, err := client.Classify(context.Background(), Request{
		Items: []feed.Item{{Title: "Anything At All Goes Here"}},
	})
	if err == nil {
		t.Fatal("Expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status in error, got: %v", err)
	}
}

func TestAnalyzeDetail(t *testing.T) {
	server := chatServer(t, "A $10M penalty applies; compliance required by January 2024.")
	defer server.Close()

	client := NewClient(server.URL, "test-model", "")
	detail, err := client.AnalyzeDetail(context.Background(),
		feed.Item{Title: "Court Ruling", FullContent: "The court imposed a $10M penalty."},
		Result{UpdateType: "Ruling", RiskScore: 8, Jurisdiction: "US"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(detail, "$10M") {
		t.Errorf("Unexpected detail: '%s'", detail)
	}
}

func TestBuildPrompt(t *testing.T) {
	req := Request{
		Items: []feed.Item{
			{Title: "First Item", Source: "FTC", PubDate: time.Date(2023, 7, 3, 0, 0, 0, 0, time.UTC), Description: "desc"},
		},
		DateRangeDays:  7,
		CompanyContext: "A payments company.",
		IncludeHints:   []string{"merger control"},
	}

	prompt := buildPrompt(req)

	for _, want := range []string{"A payments company.", "last 7 days", "merger control", "[0] First Item", "FTC", "2023-07-03"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_DefaultContext(t *testing.T) {
	prompt := buildPrompt(Request{Items: []feed.Item{{Title: "X"}}})
	if !strings.Contains(prompt, defaultCompanyContext) {
		t.Error("Expected generic company context when none provided")
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("€", 200) // 3 bytes each
	got := truncate(s, 500)

	if !utf8.ValidString(got) {
		t.Errorf("Truncated string is not valid UTF-8 (len %d)", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("Expected ellipsis suffix on truncated string")
	}
	if len(got) != 498+len("...") {
		t.Errorf("Expected cut at the 498-byte rune boundary, got %d", len(got))
	}
	if truncate("short", 500) != "short" {
		t.Error("Strings under the limit should pass through unchanged")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"Here you go: {\"a\": 1} hope that helps", `{"a": 1}`},
	}
	for _, c := range cases {
		if got := extractJSON(c.in); got != c.want {
			t.Errorf("extractJSON(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestValidateResults_NegativeRiskClamped(t *testing.T) {
	results := validateResults([]Result{
		{Index: 0, RiskScore: -5, UpdateType: "Other", Jurisdiction: "US"},
	}, 1)
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].RiskScore != 0 {
		t.Errorf("Expected risk clamped to 0, got %v", results[0].RiskScore)
	}
}
