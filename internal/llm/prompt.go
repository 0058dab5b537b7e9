package llm

import (
	"fmt"
	"strings"
)

const promptTemplate = `Analyze this email and output pure JSON only.
Do not use markdown or code-fence markers.
Format the narrative content with line breaks where it helps readability.

Important conversion rules:
- Client names MUST be shortened to their common short form.
  Examples: 本田技研工業株式会社 -> ホンダ, トヨタ自動車株式会社 -> トヨタ,
  株式会社日立製作所 -> 日立, Sony Corporation -> Sony
- Remove legal-entity forms such as 株式会社, 有限会社, 合同会社, Co., Ltd., Inc., Corp.
- Use the widely known nickname when one exists.
- Shorten product codes by family:
  - USL06-**-**: USL06
  - USL08-**-**: USL08
  - IMS-SD-H-*: IMS-SD

Output format:
{
  "is_report": true/false,
  "reporter": "reporter name (choose from the reporter list, no honorifics)",
  "report_date": "YYYY-MM-DD",
  "entries": [
    {
      "client_name": "client name (shortened, common form)",
      "client_department": "client department",
      "client_person": "client contact name (no honorifics)",
      "employee_name": "accompanying staff name (from the staff list)",
      "product_name": "product name",
      "content": "narrative content"
    }
  ]
}

Reporter list (identify the reporter from this list):
%s

Staff list (for identifying accompanying staff):
%s

Product list (pick the matching name; if none matches, record it as written):
%s

Product detection rules:
- When a bare number (e.g. 2020, 3040, 4060) is written as a product name, add a known prefix such as TF- or DSA- and check the product list.
- Example: "2020" -> "TF-2020", "3040" -> "TF-3040", then confirm against the list.
- Use the official name when the list has a match; otherwise record the name exactly as written.

Sender: %s
Sent: %s
Subject: %s
Body: %s
`

// BuildPrompt renders the fixed extraction instruction for one message.
// Pure function of its inputs so the validator can be tested without a model.
func BuildPrompt(reporters, employees, products []string, subject, sender, date, body string) string {
	return fmt.Sprintf(promptTemplate,
		strings.Join(reporters, ","),
		strings.Join(employees, ","),
		strings.Join(products, ","),
		sender,
		date,
		subject,
		body,
	)
}
