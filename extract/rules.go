package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"github.com/evanhollis/covergraph/chunker"
)

// ---------------------------------------------------------------------------
// Identifiers: policies and claims
// ---------------------------------------------------------------------------

var (
	// "policy number: ABC-123", "Policy No. 12345", "policy # HO-77"
	policyNumberPattern = regexp.MustCompile(`(?i)\bpolicy\s*(?:number\b|no\b\.?|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{2,})`)
	// "Policy P1001" with a letter-prefixed identifier
	policyIDPattern    = regexp.MustCompile(`\bPolicy\s+([A-Z]{1,3}-?\d{3,}[A-Z0-9-]*)\b`)
	claimNumberPattern = regexp.MustCompile(`(?i)\bclaim\s*(?:number\b|no\b\.?|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{2,})`)
	claimIDPattern     = regexp.MustCompile(`\bClaim\s+([A-Z]{1,3}-?\d{3,}[A-Z0-9-]*)\b`)
)

func extractIdentifiers(content string) []Mention {
	var out []Mention
	for _, p := range []*regexp.Regexp{policyNumberPattern, policyIDPattern} {
		for _, m := range p.FindAllStringSubmatch(content, -1) {
			id := strings.ToUpper(m[1])
			out = append(out, Mention{
				Type:       "policy",
				Name:       id,
				Attributes: map[string]string{"policy_number": id},
			})
		}
	}
	for _, p := range []*regexp.Regexp{claimNumberPattern, claimIDPattern} {
		for _, m := range p.FindAllStringSubmatch(content, -1) {
			id := strings.ToUpper(m[1])
			out = append(out, Mention{
				Type:       "claim",
				Name:       id,
				Attributes: map[string]string{"claim_number": id},
			})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Parties: insured, insurer, beneficiary
// ---------------------------------------------------------------------------

// namePhrase matches up to four consecutive title-cased words on one line.
const namePhrase = `([A-Z][A-Za-z.'-]+(?: [A-Z][A-Za-z.'-]+){0,3})`

var (
	namedInsuredPattern = regexp.MustCompile(`(?i:named\s+insured)\s*[:#]?\s*` + namePhrase)
	issuedByPattern     = regexp.MustCompile(`(?i:(?:underwritten|issued)\s+by)\s+` + namePhrase)
	insurerLabelPattern = regexp.MustCompile(`(?:Insurer|Company|Carrier)\s*:\s*` + namePhrase)
	beneficiaryPattern  = regexp.MustCompile(`(?i:beneficiary)\s*[:#]?\s*` + namePhrase)
)

func extractParties(content string) []Mention {
	var out []Mention
	for _, m := range namedInsuredPattern.FindAllStringSubmatch(content, -1) {
		out = append(out, Mention{Type: "insured", Name: m[1]})
	}
	for _, p := range []*regexp.Regexp{issuedByPattern, insurerLabelPattern} {
		for _, m := range p.FindAllStringSubmatch(content, -1) {
			out = append(out, Mention{Type: "insurer", Name: m[1]})
		}
	}
	for _, m := range beneficiaryPattern.FindAllStringSubmatch(content, -1) {
		out = append(out, Mention{Type: "beneficiary", Name: m[1]})
	}
	return out
}

// ---------------------------------------------------------------------------
// Coverages, property, liability
// ---------------------------------------------------------------------------

// coverageLetterPattern matches "Coverage A - Dwelling" style headings,
// with hyphen, colon, en or em dash separators.
var coverageLetterPattern = regexp.MustCompile(`(?i:coverage)\s+([A-F])\s*(?:[-:]|\x{2013}|\x{2014})\s*([^\n.]+)`)

// namedCoverages are standard homeowners coverages recognised by phrase
// anywhere in the text.
var namedCoverages = []struct {
	phrase string
	name   string
}{
	{"other structures", "Other Structures"},
	{"personal property", "Personal Property"},
	{"loss of use", "Loss of Use"},
	{"personal liability", "Personal Liability"},
	{"medical payments", "Medical Payments"},
	{"dwelling", "Dwelling"},
}

var liabilityPhrases = []struct {
	phrase string
	name   string
}{
	{"bodily injury", "Bodily Injury"},
	{"property damage", "Property Damage"},
	{"personal injury", "Personal Injury"},
}

// propertyItems are the scheduled-property categories that carry
// special limits.
var propertyItems = []struct {
	phrase string
	name   string
}{
	{"jewelry", "Jewelry"},
	{"watercraft", "Watercraft"},
	{"firearms", "Firearms"},
	{"silverware", "Silverware"},
	{"money", "Money"},
	{"securities", "Securities"},
	{"trailers", "Trailers"},
	{"business property", "Business Property"},
	{"electronic apparatus", "Electronic Apparatus"},
}

var additionalCoveragePattern = regexp.MustCompile(`(?m)^\s*\d{1,2}\.\s+([A-Z][A-Za-z' ]{2,40})$`)

func extractCoverages(content string, ctx Context) []Mention {
	var out []Mention
	lower := strings.ToLower(content)

	for _, m := range coverageLetterPattern.FindAllStringSubmatch(content, -1) {
		name := titlePhrase(m[2])
		if name == "" {
			name = "Coverage " + strings.ToUpper(m[1])
		}
		out = append(out, Mention{
			Type:       "coverage",
			Name:       name,
			Attributes: map[string]string{"letter": strings.ToUpper(m[1])},
		})
	}
	for _, nc := range namedCoverages {
		if strings.Contains(lower, nc.phrase) {
			out = append(out, Mention{Type: "coverage", Name: nc.name})
		}
	}
	for _, lp := range liabilityPhrases {
		if strings.Contains(lower, lp.phrase) {
			out = append(out, Mention{Type: "liability", Name: lp.name})
		}
	}

	// Scheduled property only appears in property coverage text and
	// special-limit lists; matching it everywhere would flood the graph.
	if ctx.Kind == "property_coverages" || strings.Contains(lower, "special limit") {
		for _, pi := range propertyItems {
			if strings.Contains(lower, pi.phrase) {
				out = append(out, Mention{Type: "property", Name: pi.name})
			}
		}
	}

	if strings.Contains(strings.ToLower(ctx.Heading), "additional coverage") {
		for _, m := range additionalCoveragePattern.FindAllStringSubmatch(content, -1) {
			out = append(out, Mention{Type: "additional_coverage", Name: strings.TrimSpace(m[1])})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Perils
// ---------------------------------------------------------------------------

var standardPerils = []string{
	"fire", "lightning", "windstorm", "hail", "explosion", "riot",
	"civil commotion", "aircraft", "vehicles", "smoke", "vandalism",
	"malicious mischief", "theft", "falling objects",
	"weight of ice and snow", "freezing", "volcanic eruption",
	"flood", "surface water", "earthquake", "earth movement",
	"water damage", "power failure", "neglect", "war", "nuclear hazard",
	"intentional loss", "mold",
}

var perilPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(standardPerils))
	for i, p := range standardPerils {
		out[i] = regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(p, " ", `\s+`) + `\b`)
	}
	return out
}()

var perilKinds = map[string]bool{
	"perils":               true,
	"property_coverages":   true,
	"property_exclusions":  true,
	"liability_exclusions": true,
}

func extractPerils(content string, ctx Context) []Mention {
	if !perilKinds[ctx.Kind] && ctx.ChunkType != "exclusion" {
		return nil
	}
	var out []Mention
	for i, p := range perilPatterns {
		if p.MatchString(content) {
			out = append(out, Mention{Type: "peril", Name: titleWords(standardPerils[i])})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Exclusions
// ---------------------------------------------------------------------------

var exclusionPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:we\s+do\s+not\s+cover\s+(?:loss\s+(?:caused\s+by|to|resulting\s+from)\s+)?)([A-Za-z][A-Za-z' ]{2,60})`),
	regexp.MustCompile(`(?i:coverage\s+does\s+not\s+apply\s+to\s+)([A-Za-z][A-Za-z' ]{2,60})`),
}

func extractExclusions(content string) []Mention {
	var out []Mention
	for _, p := range exclusionPhrasePatterns {
		for _, m := range p.FindAllStringSubmatch(content, -1) {
			phrase := trimConnectors(strings.TrimSpace(m[1]))
			if phrase == "" {
				continue
			}
			out = append(out, Mention{Type: "exclusion", Name: capitalizeFirst(phrase)})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

func extractDefinitions(content string, ctx Context) []Mention {
	if ctx.ChunkType != "definition" && ctx.Kind != "definitions" {
		return nil
	}
	var out []Mention
	for _, d := range chunker.ExtractDefinitions(content) {
		out = append(out, Mention{
			Type:        "definition",
			Name:        d.Term,
			Description: d.Body,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Amounts: premiums, deductibles, limits
// ---------------------------------------------------------------------------

var (
	deductibleAfterPattern  = regexp.MustCompile(`\$\s?([\d,]+(?:\.\d{2})?)\s+(?i:deductible)`)
	deductibleBeforePattern = regexp.MustCompile(`(?i:deductible)[^.\n$]{0,40}\$\s?([\d,]+(?:\.\d{2})?)`)
	premiumPattern          = regexp.MustCompile(`(?i)((?:annual|monthly|total)\s+)?premium[^.\n$]{0,40}\$\s?([\d,]+(?:\.\d{2})?)`)
	limitPattern            = regexp.MustCompile(`(?i)limit\s+of\s+(?:liability|insurance)[^.\n$]{0,60}\$\s?([\d,]+(?:\.\d{2})?)`)
)

func extractAmounts(content string, ctx Context) []Mention {
	var out []Mention

	if ctx.Kind == "declarations" || ctx.ChunkType == "declarations" || ctx.ChunkType == "table" {
		for _, e := range chunker.DetectDeclarationEntries(content) {
			lowerLabel := strings.ToLower(e.Label)
			attrs := map[string]string{"amount": formatAmount(e.Amount)}
			switch {
			case strings.Contains(lowerLabel, "premium"):
				out = append(out, Mention{Type: "premium", Name: "Premium", Attributes: attrs})
			case strings.Contains(lowerLabel, "deductible"):
				out = append(out, Mention{Type: "deductible", Name: "Deductible", Attributes: attrs})
			default:
				if m := coverageLetterPattern.FindStringSubmatch(e.Label); m != nil {
					attrs["letter"] = strings.ToUpper(m[1])
				}
				out = append(out, Mention{Type: "limit", Name: e.Label, Attributes: attrs})
			}
		}
	}

	for _, p := range []*regexp.Regexp{deductibleAfterPattern, deductibleBeforePattern} {
		for _, m := range p.FindAllStringSubmatch(content, -1) {
			out = append(out, Mention{
				Type:       "deductible",
				Name:       "Deductible",
				Attributes: map[string]string{"amount": cleanNumber(m[1])},
			})
		}
	}
	for _, m := range premiumPattern.FindAllStringSubmatch(content, -1) {
		attrs := map[string]string{"amount": cleanNumber(m[2])}
		if period := strings.TrimSpace(strings.ToLower(m[1])); period != "" {
			attrs["period"] = period
		}
		out = append(out, Mention{Type: "premium", Name: "Premium", Attributes: attrs})
	}
	for _, m := range limitPattern.FindAllStringSubmatch(content, -1) {
		out = append(out, Mention{
			Type:       "limit",
			Name:       "Limit of Liability",
			Attributes: map[string]string{"amount": cleanNumber(m[1])},
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Endorsements and riders
// ---------------------------------------------------------------------------

var riderPattern = regexp.MustCompile(`\b([A-Z][a-z]+)\s+[Rr]ider\b`)

func extractEndorsements(content string) []Mention {
	var out []Mention
	for _, ref := range chunker.DetectCrossReferences(content) {
		if ref.Type != "endorsement" && ref.Type != "form" {
			continue
		}
		out = append(out, Mention{
			Type:       "endorsement",
			Name:       strings.ToUpper(ref.Target),
			Attributes: map[string]string{"reference": ref.FullMatch},
		})
	}
	for _, m := range riderPattern.FindAllStringSubmatch(content, -1) {
		out = append(out, Mention{Type: "rider", Name: m[1] + " Rider"})
	}
	return out
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

func extractConditions(content string, ctx Context) []Mention {
	if ctx.Kind != "conditions" && ctx.ChunkType != "obligation" {
		return nil
	}
	heading := strings.TrimSpace(ctx.Heading)
	if heading == "" {
		return nil
	}
	// The canonical "CONDITIONS" banner itself is structure, not a
	// condition; only named duties below it become entities.
	if _, isCanonical := chunker.CanonicalPolicySection(heading); isCanonical {
		return nil
	}
	attrs := map[string]string{}
	if obs := chunker.DetectObligations(content); len(obs) > 0 {
		attrs["party"] = obs[0].Party
		attrs["level"] = obs[0].Level
		attrs["obligations"] = strconv.Itoa(len(obs))
	}
	return []Mention{{Type: "condition", Name: heading, Attributes: attrs}}
}

// ---------------------------------------------------------------------------
// Policy term dates and risk signals
// ---------------------------------------------------------------------------

var (
	effectiveDatePattern  = regexp.MustCompile(`(?i)(?:effective|inception)\s+date\s*[:#]?\s*([A-Za-z0-9, /-]{6,30})`)
	expirationDatePattern = regexp.MustCompile(`(?i)(?:expiration|expiry)\s+date\s*[:#]?\s*([A-Za-z0-9, /-]{6,30})`)
	policyPeriodPattern   = regexp.MustCompile(`(?i)policy\s+period\s*[:#]?\s*(?:from\s+)?([A-Za-z0-9, /-]{6,30}?)\s+(?:to|through|until)\s+([A-Za-z0-9, /-]{6,30})`)
	riskOfPattern         = regexp.MustCompile(`(?i)\brisks?\s+of\s+([a-z][a-z ]{3,40})`)
	underwritingPattern   = regexp.MustCompile(`(?i)underwriting\s+(guidelines|department|review|rules)`)
)

func extractPolicyTerm(content string) []Mention {
	attrs := map[string]string{}
	if m := effectiveDatePattern.FindStringSubmatch(content); m != nil {
		if d, ok := parseDateLoose(m[1]); ok {
			attrs["effective_date"] = d
		}
	}
	if m := expirationDatePattern.FindStringSubmatch(content); m != nil {
		if d, ok := parseDateLoose(m[1]); ok {
			attrs["expiration_date"] = d
		}
	}
	if m := policyPeriodPattern.FindStringSubmatch(content); m != nil {
		if d, ok := parseDateLoose(m[1]); ok {
			attrs["effective_date"] = d
		}
		if d, ok := parseDateLoose(m[2]); ok {
			attrs["expiration_date"] = d
		}
	}

	var out []Mention
	if len(attrs) > 0 {
		out = append(out, Mention{Type: "term", Name: "Policy Period", Attributes: attrs})
	}
	for _, m := range riskOfPattern.FindAllStringSubmatch(content, -1) {
		phrase := trimConnectors(strings.TrimSpace(m[1]))
		if phrase != "" {
			out = append(out, Mention{Type: "risk", Name: capitalizeFirst(phrase)})
		}
	}
	if m := underwritingPattern.FindStringSubmatch(content); m != nil {
		out = append(out, Mention{Type: "underwriting", Name: "Underwriting " + capitalizeFirst(strings.ToLower(m[1]))})
	}
	return out
}

// parseDateLoose parses a free-text date, dropping trailing words until
// dateparse accepts the remainder.
func parseDateLoose(s string) (string, bool) {
	fields := strings.Fields(strings.Trim(s, " ,"))
	for len(fields) >= 1 {
		t, err := dateparse.ParseAny(strings.Join(fields, " "))
		if err == nil {
			return t.Format("2006-01-02"), true
		}
		fields = fields[:len(fields)-1]
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Phrase helpers
// ---------------------------------------------------------------------------

var phraseStop = map[string]bool{
	"We": true, "The": true, "This": true, "You": true, "Your": true,
	"If": true, "A": true, "An": true, "It": true, "Is": true,
	"Are": true, "Means": true,
}

var phraseConnectors = map[string]bool{
	"of": true, "to": true, "and": true, "the": true,
}

// titlePhrase trims a heading tail to its leading title-cased phrase:
// "Dwelling We cover the dwelling" becomes "Dwelling".
func titlePhrase(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "$("); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	var kept []string
	for _, f := range strings.Fields(s) {
		clean := strings.Trim(f, ",;:")
		if clean == "" || phraseStop[clean] {
			break
		}
		first := clean[0]
		switch {
		case first >= 'A' && first <= 'Z':
			kept = append(kept, clean)
		case len(kept) > 0 && phraseConnectors[strings.ToLower(clean)]:
			kept = append(kept, clean)
		default:
			return joinTrimmed(kept)
		}
		if len(kept) == 5 {
			break
		}
	}
	return joinTrimmed(kept)
}

func joinTrimmed(words []string) string {
	for len(words) > 0 && phraseConnectors[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// titleWords capitalizes each word except mid-phrase connectors.
func titleWords(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if i > 0 && phraseConnectors[f] {
			continue
		}
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}

// trimConnectors drops trailing "or"/"and"/"of" style words left over
// from a cut-off capture.
func trimConnectors(s string) string {
	fields := strings.Fields(s)
	for len(fields) > 0 {
		last := strings.ToLower(fields[len(fields)-1])
		if last == "or" || last == "and" || last == "of" || last == "to" || last == "by" || last == "the" {
			fields = fields[:len(fields)-1]
			continue
		}
		break
	}
	return strings.Join(fields, " ")
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func cleanNumber(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}
