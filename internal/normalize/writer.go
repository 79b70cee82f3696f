package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// textWriter accumulates rendered output. It tracks list nesting and code
// blocks so block elements from both HTML and ADF render the same way.
type textWriter struct {
	sb       strings.Builder
	markdown bool
	lists    []listState
	inPre    bool
	// itemOpen is set right after a list bullet so a paragraph inside the
	// item stays on the bullet line.
	itemOpen bool
}

type listState struct {
	ordered bool
	next    int
}

func newTextWriter(markdown bool) *textWriter {
	return &textWriter{markdown: markdown}
}

func (w *textWriter) atLineStart() bool {
	if w.sb.Len() == 0 {
		return true
	}
	s := w.sb.String()
	return s[len(s)-1] == '\n'
}

// write appends s. Outside code blocks leading whitespace at the start of a
// line is dropped.
func (w *textWriter) write(s string) {
	if s == "" {
		return
	}
	if !w.inPre && (w.itemOpen || w.atLineStart()) {
		s = strings.TrimLeft(s, " \t")
	}
	if s == "" {
		return
	}
	w.itemOpen = false
	w.sb.WriteString(s)
}

// text appends inline text with whitespace collapsed.
func (w *textWriter) text(s string) {
	if w.inPre {
		w.itemOpen = false
		w.sb.WriteString(s)
		return
	}
	w.write(spaceRun.ReplaceAllString(s, " "))
}

// markup appends s only in markdown mode.
func (w *textWriter) markup(s string) {
	if w.markdown {
		w.write(s)
	}
}

// newline ends the current line and adds blank lines up to n newlines total.
func (w *textWriter) newline(n int) {
	if w.sb.Len() == 0 || w.itemOpen {
		return
	}
	s := w.sb.String()
	have := len(s) - len(strings.TrimRight(s, "\n"))
	for ; have < n; have++ {
		w.sb.WriteByte('\n')
	}
}

func (w *textWriter) heading(level int) {
	w.newline(2)
	if w.markdown && level > 0 {
		w.write(strings.Repeat("#", level) + " ")
	}
}

func (w *textWriter) startList(ordered bool, start int) {
	if start < 1 {
		start = 1
	}
	w.lists = append(w.lists, listState{ordered: ordered, next: start})
	w.newline(1)
}

func (w *textWriter) endList() {
	if len(w.lists) > 0 {
		w.lists = w.lists[:len(w.lists)-1]
	}
	w.newline(1)
}

func (w *textWriter) listItem() {
	w.itemOpen = false
	w.newline(1)
	if len(w.lists) == 0 {
		w.sb.WriteString("- ")
		w.itemOpen = true
		return
	}
	top := &w.lists[len(w.lists)-1]
	indent := strings.Repeat("  ", len(w.lists)-1)
	if top.ordered {
		w.sb.WriteString(indent + strconv.Itoa(top.next) + ". ")
		top.next++
	} else {
		w.sb.WriteString(indent + "- ")
	}
	w.itemOpen = true
}

func (w *textWriter) startCode(lang string) {
	w.newline(2)
	if w.markdown {
		w.write("```" + lang)
		w.newline(1)
	}
	w.inPre = true
}

func (w *textWriter) endCode() {
	w.inPre = false
	w.newline(1)
	if w.markdown {
		w.write("```")
	}
	w.newline(2)
}

func (w *textWriter) rule() {
	w.newline(2)
	if w.markdown {
		w.write("---")
	} else {
		w.write("----------------")
	}
	w.newline(2)
}

// row writes one table row. header rows get a separator in markdown mode.
func (w *textWriter) row(cells []string, header bool) {
	if len(cells) == 0 {
		return
	}
	w.newline(1)
	if !w.markdown {
		w.write(strings.Join(cells, " | "))
		w.newline(1)
		return
	}
	w.write("| " + strings.Join(cells, " | ") + " |")
	w.newline(1)
	if header {
		w.write("|" + strings.Repeat(" --- |", len(cells)))
		w.newline(1)
	}
}

func (w *textWriter) String() string {
	return tidy(w.sb.String())
}

// tidy trims trailing whitespace on every line, collapses runs of blank
// lines to one and trims the result.
func tidy(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// cellText reduces rendered cell content to a single line.
func cellText(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
