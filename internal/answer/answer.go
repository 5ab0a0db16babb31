// Package answer holds the structured medical-answer contract returned by the
// inference backend and the normalizer that maps raw payloads into it.
package answer

import (
	"encoding/json"
	"strings"
)

// Severity grades a drug-drug interaction. The backend emits upper-case
// labels; unknown labels rank below MODERATE.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityModerate Severity = "MODERATE"
	SeverityMinor    Severity = "MINOR"
)

// Tier ranks severities so renderers can style them distinctly.
// Higher is more severe.
func (s Severity) Tier() int {
	switch Severity(strings.ToUpper(strings.TrimSpace(string(s)))) {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityModerate:
		return 1
	default:
		return 0
	}
}

// Interaction describes one drug-drug interaction found for the query.
type Interaction struct {
	DrugsInvolved  []string `json:"drugs_involved"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

// SafetyWarning covers contraindications, warnings, precautions and
// adverse effects.
type SafetyWarning struct {
	Category    string `json:"category"`
	Condition   string `json:"condition"`
	Description string `json:"description"`
}

// Reimbursement carries coverage and pricing details when the query asked
// about them.
type Reimbursement struct {
	CoverageStatus string `json:"coverage_status"`
	PriceRange     string `json:"price_range,omitempty"`
	Restrictions   string `json:"restrictions,omitempty"`
}

// Source references a backend database snippet used to build the answer.
type Source struct {
	Database string `json:"database"`
	Snippet  string `json:"snippet"`
}

// Record is the structured answer payload. Every field except Summary is
// optional; absent fields must not render their section.
type Record struct {
	Summary         string          `json:"summary"`
	DrugInformation string          `json:"drug_information,omitempty"`
	Interactions    []Interaction   `json:"interactions,omitempty"`
	SafetyWarnings  []SafetyWarning `json:"safety_warnings,omitempty"`
	Reimbursement   *Reimbursement  `json:"reimbursement,omitempty"`
	Recommendations string          `json:"recommendations,omitempty"`
	DataLimitations string          `json:"data_limitations,omitempty"`
	Sources         []Source        `json:"sources,omitempty"`
	Disclaimer      string          `json:"disclaimer,omitempty"`
}

func (r *Record) HasDrugInformation() bool { return strings.TrimSpace(r.DrugInformation) != "" }
func (r *Record) HasInteractions() bool    { return len(r.Interactions) > 0 }
func (r *Record) HasSafetyWarnings() bool  { return len(r.SafetyWarnings) > 0 }
func (r *Record) HasReimbursement() bool   { return r.Reimbursement != nil }
func (r *Record) HasRecommendations() bool { return strings.TrimSpace(r.Recommendations) != "" }
func (r *Record) HasDataLimitations() bool { return strings.TrimSpace(r.DataLimitations) != "" }
func (r *Record) HasSources() bool         { return len(r.Sources) > 0 }

// SourceNames lists the source database names in order, for consumers that
// still display a flat source list next to the turn.
func (r *Record) SourceNames() []string {
	if len(r.Sources) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		names = append(names, s.Database)
	}
	return names
}

// Content is what an assistant turn carries: either plain text (errors,
// legacy replies, unexpected payloads) or a structured Record. Exactly one
// of the two is set.
type Content struct {
	Text   string
	Record *Record
}

// PlainText wraps a plain string as turn content.
func PlainText(text string) Content { return Content{Text: text} }

// Structured wraps a Record as turn content.
func Structured(r *Record) Content { return Content{Record: r} }

func (c Content) IsStructured() bool { return c.Record != nil }

// MarshalJSON serializes the content the way the backend would have sent it:
// the record object for structured answers, a JSON string otherwise.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Record != nil {
		return json.Marshal(c.Record)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON re-applies Normalize so decoded turns keep the same shape
// rules as live ones.
func (c *Content) UnmarshalJSON(data []byte) error {
	*c = Normalize(data)
	return nil
}

// Normalize maps a raw backend payload into turn content. A JSON object
// carrying a non-empty summary string becomes a structured Record. A JSON
// string is unwrapped. Anything else is kept verbatim as plain text; a
// malformed payload is degraded, never rejected.
func Normalize(raw json.RawMessage) Content {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return PlainText("")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return PlainText(s)
		}
		return PlainText(trimmed)
	}

	if trimmed[0] == '{' {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err == nil && strings.TrimSpace(rec.Summary) != "" {
			return Structured(&rec)
		}
	}
	return PlainText(trimmed)
}
