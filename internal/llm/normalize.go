package llm

import (
	"encoding/json"
	"strings"
)

// reportPayload mirrors the model's output contract
type reportPayload struct {
	IsReport   bool           `json:"is_report"`
	Reporter   string         `json:"reporter"`
	ReportDate string         `json:"report_date"`
	Entries    []entryPayload `json:"entries"`
}

type entryPayload struct {
	ClientName       string `json:"client_name"`
	ClientDepartment string `json:"client_department"`
	ClientPerson     string `json:"client_person"`
	EmployeeName     string `json:"employee_name"`
	ProductName      string `json:"product_name"`
	Content          string `json:"content"`
}

// Normalizer turns raw model text into an ExtractionResult
type Normalizer struct {
	canon *Canonicalizer
}

// NewNormalizer creates a normalizer; canon may be nil to skip re-folding
func NewNormalizer(canon *Canonicalizer) *Normalizer {
	return &Normalizer{canon: canon}
}

// Normalize classifies raw model output as exactly one of Report, NotAReport
// or Malformed. Total over any input; never raises past this boundary.
func (n *Normalizer) Normalize(raw string) ExtractionResult {
	text := StripFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return ExtractionResult{Kind: KindMalformed, Raw: raw, Reason: "invalid JSON: " + err.Error()}
	}

	if err := validateShape(doc); err != nil {
		return ExtractionResult{Kind: KindMalformed, Raw: raw, Reason: "schema mismatch: " + err.Error()}
	}

	var payload reportPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return ExtractionResult{Kind: KindMalformed, Raw: raw, Reason: "decode: " + err.Error()}
	}

	// Absent flag reads as false: valid JSON that is not a report.
	if !payload.IsReport {
		return ExtractionResult{Kind: KindNonReport, Raw: raw}
	}

	report := Report{
		Reporter:   strings.TrimSpace(payload.Reporter),
		ReportDate: strings.TrimSpace(payload.ReportDate),
	}

	for _, e := range payload.Entries {
		entry := Entry{
			ClientName:       strings.TrimSpace(e.ClientName),
			ClientDepartment: strings.TrimSpace(e.ClientDepartment),
			ClientPerson:     strings.TrimSpace(e.ClientPerson),
			EmployeeName:     strings.TrimSpace(e.EmployeeName),
			ProductName:      strings.TrimSpace(e.ProductName),
			Content:          strings.TrimSpace(e.Content),
		}
		if n.canon != nil {
			entry.ClientName = n.canon.ClientName(entry.ClientName)
			entry.ProductName = n.canon.Product(entry.ProductName)
		}
		report.Entries = append(report.Entries, entry)
	}

	return ExtractionResult{Kind: KindReport, Report: report, Raw: raw}
}

// StripFences removes a leading and trailing markdown code fence if the model
// ignored its instructions and wrapped the JSON anyway.
func StripFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}

	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = s[:strings.LastIndex(s, "```")]
	}

	return strings.TrimSpace(s)
}
