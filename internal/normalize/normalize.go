// Package normalize converts rich document bodies (Confluence storage HTML,
// Atlassian Document Format, plain text) into markdown or plain text that
// keeps heading structure and paragraph breaks.
//
// Conversion never fails: malformed fragments degrade to empty text and a
// warning is logged.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/danielolaszy/archprompt/internal/logging"
)

var htmlTag = regexp.MustCompile(`<[a-zA-Z!/][^<>]*>`)

// Format is the markup of a source body.
type Format string

const (
	FormatHTML  Format = "html"
	FormatADF   Format = "adf"
	FormatPlain Format = "plain"
)

// Mode is the requested output rendering.
type Mode string

const (
	ModeMarkdown Mode = "markdown"
	ModeText     Mode = "text"
	// ModeRaw returns the source body untouched.
	ModeRaw Mode = "raw"
)

// ParseMode validates an --html-mode value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeMarkdown, nil
	case ModeMarkdown, ModeText, ModeRaw:
		return m, nil
	default:
		return "", fmt.Errorf("invalid html mode %q, expected markdown, text or raw", s)
	}
}

// DetectFormat guesses the markup of body: a JSON object with a "type" key
// is ADF, anything containing an element tag is HTML, the rest is plain.
func DetectFormat(body string) Format {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"type"`) && json.Valid([]byte(trimmed)) {
		return FormatADF
	}
	if htmlTag.MatchString(trimmed) {
		return FormatHTML
	}
	return FormatPlain
}

// Normalize renders body in the requested mode. Text mode strips markdown
// markers; raw mode returns body unchanged.
func Normalize(body string, format Format, mode Mode) string {
	if mode == ModeRaw {
		return body
	}
	markdown := mode != ModeText

	var out string
	switch format {
	case FormatHTML:
		out = HTMLToText(body, markdown)
	case FormatADF:
		out = ADFToText([]byte(body), markdown)
	case FormatPlain:
		out = CleanPlain(body)
	default:
		logging.Warn("unknown body format, treating as plain text", "format", string(format))
		out = CleanPlain(body)
	}

	if !markdown {
		out = StripMarkdown(out)
	}
	return out
}

// NormalizeJSON renders a JSON field value that may be an ADF document, a
// string (plain or HTML) or null, as returned for Jira descriptions.
func NormalizeJSON(raw json.RawMessage, mode Mode) string {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return ""
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			logging.Warn("failed to decode string field", "error", err)
			return ""
		}
		if mode == ModeRaw {
			return s
		}
		return Normalize(s, DetectFormat(s), mode)
	case strings.HasPrefix(trimmed, "{"):
		if mode == ModeRaw {
			return trimmed
		}
		return Normalize(trimmed, FormatADF, mode)
	default:
		// Numbers and booleans.
		return trimmed
	}
}
