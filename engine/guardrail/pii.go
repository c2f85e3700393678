package guardrail

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`([\w._%+-]+)@([\w.-]+)`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}`)
	cardRe  = regexp.MustCompile(`(?:\d[ -]?){13,19}`)
	ssnRe   = regexp.MustCompile(`\d{3}-\d{2}-\d{4}`)
	digits  = regexp.MustCompile(`\D`)
)

// Masker redacts personally identifiable substrings before text crosses the
// guardrail boundary outward (logs, responses, delivery payloads).
type Masker struct {
	enabled bool
}

func NewMasker(enabled bool) *Masker {
	return &Masker{enabled: enabled}
}

// Mask returns the masked text, whether anything was redacted and the reason
// tags in category:trigger form.
func (m *Masker) Mask(text string) (string, bool, []string) {
	if text == "" || !m.enabled {
		return text, false, nil
	}
	masked := text
	var reasons []string

	if emailRe.MatchString(masked) {
		masked = emailRe.ReplaceAllStringFunc(masked, maskEmail)
		reasons = append(reasons, "personal_identifiers:email")
	}
	// Card numbers first so long digit runs are not half-eaten by the phone rule.
	if cardRe.MatchString(masked) {
		masked = cardRe.ReplaceAllStringFunc(masked, maskCard)
		reasons = append(reasons, "payment_data:card_number")
	}
	if ssnRe.MatchString(masked) {
		masked = ssnRe.ReplaceAllStringFunc(masked, maskSSN)
		reasons = append(reasons, "personal_identifiers:ssn")
	}
	if phoneRe.MatchString(masked) {
		masked = phoneRe.ReplaceAllStringFunc(masked, maskPhone)
		reasons = append(reasons, "personal_identifiers:phone")
	}
	return masked, len(reasons) > 0, reasons
}

func maskEmail(match string) string {
	groups := emailRe.FindStringSubmatch(match)
	if len(groups) != 3 {
		return match
	}
	local, domain := groups[1], groups[2]
	visible := "*"
	if len(local) > 2 {
		visible = local[:2]
	}
	hidden := len(local) - len(visible)
	if hidden < 1 {
		hidden = 1
	}
	return visible + strings.Repeat("*", hidden) + "@" + domain
}

func maskPhone(match string) string {
	ds := digits.ReplaceAllString(match, "")
	if len(ds) <= 4 {
		return strings.Repeat("*", len(ds))
	}
	return strings.Repeat("*", len(ds)-2) + ds[len(ds)-2:]
}

func maskCard(match string) string {
	ds := digits.ReplaceAllString(match, "")
	if len(ds) <= 4 {
		return strings.Repeat("*", len(ds))
	}
	masked := strings.Repeat("*", len(ds)-4) + ds[len(ds)-4:]
	groups := make([]string, 0, (len(masked)+3)/4)
	for i := 0; i < len(masked); i += 4 {
		end := i + 4
		if end > len(masked) {
			end = len(masked)
		}
		groups = append(groups, masked[i:end])
	}
	return strings.Join(groups, " ")
}

func maskSSN(match string) string {
	return "***-**-" + match[7:]
}
