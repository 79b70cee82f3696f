package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	listLine         = regexp.MustCompile(`^\s*(?:[-*+•]|\d+\.)\s+`)
	headingLine      = regexp.MustCompile(`^#+\s`)
	commaBreak       = regexp.MustCompile(`,\n[ \t]+`)
	colonBreak       = regexp.MustCompile(`:\n[ \t]+`)
	brTag            = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockSplit       = regexp.MustCompile(`\n{2,}`)
	inlineSpaces     = regexp.MustCompile(`[ \t]+`)
	markdownEmphasis = regexp.MustCompile("\\*\\*|__|~~|`")
	headingMarker    = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	tableSeparator   = regexp.MustCompile(`(?m)^\|(?: *-+ *\|)+ *$\n?`)
)

// Truncate cuts s to at most max runes. A non-positive max disables it.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := 0
	for i := range s {
		if runes == max {
			return s[:i]
		}
		runes++
	}
	return s
}

// CleanPlain normalizes line endings and blank lines of plain text.
// CleanPlain(CleanPlain(s)) == CleanPlain(s).
func CleanPlain(s string) string {
	return tidy(s)
}

// StripMarkdown removes markdown markers (heading hashes, emphasis, code
// ticks and table separators) while keeping the line structure.
func StripMarkdown(s string) string {
	s = tableSeparator.ReplaceAllString(s, "")
	s = headingMarker.ReplaceAllString(s, "")
	s = markdownEmphasis.ReplaceAllString(s, "")
	return tidy(s)
}

// SanitizeWrapped joins soft line breaks inside prose blocks. Blocks that
// look like lists keep their lines; breaks after ",", ":" and sentence
// punctuation are handled so sentences and enumerations survive.
func SanitizeWrapped(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = brTag.ReplaceAllString(text, "\n")
	text = commaBreak.ReplaceAllString(text, ", ")
	text = colonBreak.ReplaceAllString(text, ": ")

	blocks := blockSplit.Split(text, -1)
	for i, b := range blocks {
		if !isListBlock(b) {
			blocks[i] = unwrapBlock(b)
		}
	}
	text = strings.Join(blocks, "\n\n")

	text = inlineSpaces.ReplaceAllString(text, " ")
	text = trailingSpace.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func isListBlock(block string) bool {
	for _, ln := range strings.Split(block, "\n") {
		if strings.TrimSpace(ln) != "" && listLine.MatchString(ln) {
			return true
		}
	}
	return false
}

// unwrapBlock joins a line with the next unless it ends a sentence or the
// next line starts a list item or heading.
func unwrapBlock(block string) string {
	lines := strings.Split(block, "\n")
	var sb strings.Builder
	for i, ln := range lines {
		sb.WriteString(ln)
		if i == len(lines)-1 {
			break
		}
		next := lines[i+1]
		if endsSentence(ln) || listLine.MatchString(next) || headingLine.MatchString(strings.TrimLeft(next, " \t")) {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteByte(' ')
	}
	return sb.String()
}

func endsSentence(line string) bool {
	line = strings.TrimRight(line, " \t")
	if line == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(line)
	return strings.ContainsRune(".!?:;)]”»-", r)
}

// SplitAcceptanceCriteria turns free text into a list of criteria. Every
// non-empty line is an item with bullets and numbering removed; when that
// yields nothing the text is split on ";", "," and "·". Items shorter than
// three characters are dropped.
func SplitAcceptanceCriteria(text string) []string {
	text = SanitizeWrapped(text)
	if text == "" {
		return nil
	}

	var out []string
	for _, raw := range strings.Split(text, "\n") {
		s := strings.TrimLeft(strings.TrimSpace(raw), "-*•+–—\t ")
		s = strings.TrimSpace(strings.TrimLeft(s, "0123456789. "))
		if utf8.RuneCountInString(s) >= 3 {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
	}
	if len(out) > 0 || !strings.ContainsAny(text, ";,·") {
		return out
	}

	tmp := strings.ReplaceAll(text, "·", ";")
	for _, chunk := range strings.FieldsFunc(tmp, func(r rune) bool { return r == ';' || r == ',' }) {
		s := strings.TrimSpace(chunk)
		if utf8.RuneCountInString(s) >= 3 {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
	}
	return out
}
