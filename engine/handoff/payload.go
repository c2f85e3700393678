package handoff

import (
	"fmt"
	"regexp"
	"strings"
)

// Message is the escalation notification sent to the operator channel. Every
// field is built from masked, sanitized text.
type Message struct {
	Channel string           `json:"channel"`
	Text    string           `json:"text"`
	Blocks  []map[string]any `json:"blocks"`
}

var (
	payloadEmailRe = regexp.MustCompile(`[\w._%+-]+@[\w.-]+`)
	payloadPhoneRe = regexp.MustCompile(`\+?\d[\d\-\s]{7,}\d`)
	payloadDigits  = regexp.MustCompile(`\b\d{11,}\b`)
	htmlTagRe      = regexp.MustCompile(`<[^>]+>`)
	linkRe         = regexp.MustCompile(`https?://\S+`)
	spaceRunsRe    = regexp.MustCompile(`\s+`)
)

// PayloadBuilder assembles channel messages with bounded field sizes.
type PayloadBuilder struct {
	channel         string
	summaryMaxChars int
	detailsMaxChars int
}

func NewPayloadBuilder(channel string, summaryMaxChars, detailsMaxChars int) *PayloadBuilder {
	return &PayloadBuilder{
		channel:         channel,
		summaryMaxChars: summaryMaxChars,
		detailsMaxChars: detailsMaxChars,
	}
}

// Build renders the notification for a confirmed handoff record.
func (b *PayloadBuilder) Build(record Record, links []string) Message {
	summary := truncate(sanitize(maskPayload(record.Summary)), b.summaryMaxChars)
	details := truncate(sanitize(maskPayload(record.Details)), b.detailsMaxChars)
	title := truncate(sanitize(maskPayload(composeTitle(record))), 120)
	requestedBy := maskPayload(record.UserID)

	lines := []string{"*" + title + "*", summary}
	if details != "" {
		lines = append(lines, details)
	}
	if record.TicketID != "" {
		lines = append(lines, "Ticket: `"+record.TicketID+"`")
	}
	if record.Category != "" || record.Priority != "" {
		lines = append(lines, "Clas.: "+orDash(record.Category)+"/"+orDash(record.Priority))
	}
	if requestedBy != "" {
		lines = append(lines, "Solicitado por: "+requestedBy)
	}
	for i, link := range links {
		if i == 3 {
			break
		}
		lines = append(lines, "Link: "+link)
	}
	lines = append(lines, "Correlation: "+record.CorrelationID)

	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "*" + title + "*"},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": "*Resumo*\n" + summary},
				{"type": "mrkdwn", "text": "*Prioridade*\n" + orDash(record.Priority)},
				{"type": "mrkdwn", "text": "*Categoria*\n" + orDash(record.Category)},
			},
		},
	}
	if details != "" {
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "*Detalhes*\n" + details},
		})
	}
	if record.TicketID != "" {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": "Ticket `" + record.TicketID + "`"},
			},
		})
	}
	blocks = append(blocks, map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": "Correlation: " + record.CorrelationID},
			{"type": "mrkdwn", "text": "Solicitado por: " + orNd(requestedBy)},
		},
	})

	return Message{Channel: b.channel, Text: strings.Join(lines, "\n"), Blocks: blocks}
}

func composeTitle(record Record) string {
	ticket := "#SEM-TICKET"
	if record.TicketID != "" {
		ticket = "#" + record.TicketID
	}
	category := record.Category
	if category == "" {
		category = "sem-categoria"
	}
	priority := record.Priority
	if priority == "" {
		priority = "sem-prioridade"
	}
	return strings.ToUpper(fmt.Sprintf("[SUPPORT ESCALATION] %s %s/%s", ticket, category, priority))
}

// maskPayload redacts emails, phone-shaped sequences and long digit runs.
func maskPayload(text string) string {
	if text == "" {
		return ""
	}
	masked := payloadEmailRe.ReplaceAllStringFunc(text, func(match string) string {
		at := strings.Index(match, "@")
		return "***" + match[at:]
	})
	masked = payloadPhoneRe.ReplaceAllString(masked, "***")
	masked = payloadDigits.ReplaceAllString(masked, "***")
	return masked
}

// sanitize strips HTML tags, collapses links to a placeholder and squeezes
// whitespace.
func sanitize(text string) string {
	if text == "" {
		return ""
	}
	clean := htmlTagRe.ReplaceAllString(text, " ")
	clean = linkRe.ReplaceAllString(clean, "[link]")
	clean = spaceRunsRe.ReplaceAllString(clean, " ")
	return strings.TrimSpace(clean)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return strings.TrimRight(string(runes[:limit-3]), " ") + "..."
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func orNd(value string) string {
	if value == "" {
		return "n/d"
	}
	return value
}
