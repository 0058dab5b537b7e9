package llm

import "context"

// ResultKind classifies the outcome of normalizing one model response
type ResultKind int

const (
	// KindReport is a structurally valid weekly report
	KindReport ResultKind = iota
	// KindNonReport parsed fine but the model judged the mail not a report
	KindNonReport
	// KindMalformed failed to parse against the expected schema
	KindMalformed
)

// String returns a short label for logging
func (k ResultKind) String() string {
	switch k {
	case KindReport:
		return "report"
	case KindNonReport:
		return "non_report"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// Entry is one client/product/narrative tuple extracted from a mail.
// Every field is optional; content is trusted from the model.
type Entry struct {
	ClientName       string `json:"client_name"`
	ClientDepartment string `json:"client_department"`
	ClientPerson     string `json:"client_person"`
	EmployeeName     string `json:"employee_name"`
	ProductName      string `json:"product_name"`
	Content          string `json:"content"`
}

// Report is the structured form of a weekly-report mail. A report with zero
// entries is valid; it persists nothing but still concludes the mail.
type Report struct {
	Reporter   string
	ReportDate string
	Entries    []Entry
}

// ExtractionResult is the total outcome of one normalization: exactly one of
// the three kinds, never a panic.
type ExtractionResult struct {
	Kind   ResultKind
	Report Report
	// Raw is the unmodified model output, kept for Malformed diagnostics
	Raw    string
	Reason string
}

// Generator sends a rendered prompt to the model endpoint and returns raw
// text. Implementations make a single attempt; retrying is not their job.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
