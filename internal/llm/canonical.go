package llm

import "strings"

// legalForms are the legal-entity markers folded away from client names.
// Japanese forms may appear before or after the company name.
var legalForms = []string{
	"株式会社",
	"有限会社",
	"合同会社",
	"合資会社",
	"Co., Ltd.",
	"Co.,Ltd.",
	"Corporation",
	"Corp.",
	"Inc.",
	"Ltd.",
	"K.K.",
	"LLC",
	"GmbH",
}

// Canonicalizer folds free-text client and product names toward the short
// forms downstream consumers expect. The same rules are written into the
// extraction prompt; re-applying them here covers the model ignoring them.
type Canonicalizer struct {
	products map[string]struct{}
	ordered  []string
}

// NewCanonicalizer builds a canonicalizer over the known-product catalog
func NewCanonicalizer(products []string) *Canonicalizer {
	c := &Canonicalizer{
		products: make(map[string]struct{}, len(products)),
		ordered:  products,
	}
	for _, p := range products {
		c.products[p] = struct{}{}
	}
	return c
}

// ClientName strips legal-entity forms and trims separators.
// "本田技研工業株式会社" -> "本田技研工業", "Acme Corp." -> "Acme".
func (c *Canonicalizer) ClientName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	for changed := true; changed; {
		changed = false
		for _, form := range legalForms {
			if strings.Contains(name, form) {
				name = strings.ReplaceAll(name, form, "")
				changed = true
			}
		}
	}

	return strings.Trim(name, " \t、,.")
}

// Product maps a product mention to its catalog form:
//   - exact catalog members pass through
//   - a bare number matches a catalog member by numeric suffix
//     ("3040" -> "TF-3040")
//   - longer codes collapse to their catalog family by trimming trailing
//     segments ("IMS-SD-H-2" -> "IMS-SD")
//
// Mentions matching nothing are recorded as written.
func (c *Canonicalizer) Product(mention string) string {
	mention = strings.TrimSpace(mention)
	if mention == "" {
		return ""
	}

	if _, ok := c.products[mention]; ok {
		return mention
	}

	if isDigits(mention) {
		for _, p := range c.ordered {
			if strings.HasSuffix(p, "-"+mention) {
				return p
			}
		}
		return mention
	}

	// Family collapse: TF-3040-X -> TF-3040, IMS-SD-H-2 -> IMS-SD
	base := mention
	for {
		i := strings.LastIndex(base, "-")
		if i <= 0 {
			break
		}
		base = base[:i]
		if _, ok := c.products[base]; ok {
			return base
		}
	}

	return mention
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
