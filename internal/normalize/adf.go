package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danielolaszy/archprompt/internal/logging"
)

// Kind is the type tag of an Atlassian Document Format node.
type Kind string

const (
	KindDoc          Kind = "doc"
	KindParagraph    Kind = "paragraph"
	KindHeading      Kind = "heading"
	KindText         Kind = "text"
	KindHardBreak    Kind = "hardBreak"
	KindBulletList   Kind = "bulletList"
	KindOrderedList  Kind = "orderedList"
	KindListItem     Kind = "listItem"
	KindCodeBlock    Kind = "codeBlock"
	KindBlockquote   Kind = "blockquote"
	KindRule         Kind = "rule"
	KindTable        Kind = "table"
	KindTableRow     Kind = "tableRow"
	KindTableHeader  Kind = "tableHeader"
	KindTableCell    Kind = "tableCell"
	KindPanel        Kind = "panel"
	KindExpand       Kind = "expand"
	KindNestedExpand Kind = "nestedExpand"
	KindMention      Kind = "mention"
	KindEmoji        Kind = "emoji"
	KindStatus       Kind = "status"
	KindDate         Kind = "date"
	KindInlineCard   Kind = "inlineCard"
	KindBlockCard    Kind = "blockCard"
	KindTaskList     Kind = "taskList"
	KindTaskItem     Kind = "taskItem"
	KindDecisionList Kind = "decisionList"
	KindDecisionItem Kind = "decisionItem"
	KindMediaSingle  Kind = "mediaSingle"
	KindMediaGroup   Kind = "mediaGroup"
	KindMedia        Kind = "media"
)

// Node is one ADF node: a kind tag plus the payload fields ADF uses.
type Node struct {
	Kind    Kind           `json:"type"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Content []Node         `json:"content,omitempty"`
}

// Mark is inline formatting on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

func (n Node) attrString(key string) string {
	v, ok := n.Attrs[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func (n Node) attrInt(key string) int {
	switch t := n.Attrs[key].(type) {
	case float64:
		return int(t)
	case string:
		i, _ := strconv.Atoi(t)
		return i
	}
	return 0
}

type renderFunc func(w *textWriter, n Node)

// adfRenderers dispatches on node kind. Kinds not in the table render
// nothing, children included.
var adfRenderers map[Kind]renderFunc

func init() {
	skip := func(*textWriter, Node) {}
	adfRenderers = map[Kind]renderFunc{
		KindDoc:          renderADFChildren,
		KindParagraph:    renderADFParagraph,
		KindHeading:      renderADFHeading,
		KindText:         renderADFText,
		KindHardBreak:    func(w *textWriter, _ Node) { w.sb.WriteByte('\n') },
		KindBulletList:   renderADFList(false),
		KindOrderedList:  renderADFList(true),
		KindListItem:     renderADFListItem,
		KindCodeBlock:    renderADFCodeBlock,
		KindBlockquote:   renderADFBlock,
		KindRule:         func(w *textWriter, _ Node) { w.rule() },
		KindTable:        renderADFBlock,
		KindTableRow:     renderADFTableRow,
		KindPanel:        renderADFBlock,
		KindExpand:       renderADFExpand,
		KindNestedExpand: renderADFExpand,
		KindMention:      renderADFMention,
		KindEmoji:        renderADFEmoji,
		KindStatus:       func(w *textWriter, n Node) { w.write("[" + n.attrString("text") + "]") },
		KindDate:         renderADFDate,
		KindInlineCard:   renderADFCard,
		KindBlockCard:    renderADFCard,
		KindTaskList:     renderADFList(false),
		KindTaskItem:     renderADFTaskItem,
		KindDecisionList: renderADFList(false),
		KindDecisionItem: renderADFListItem,
		KindMediaSingle:  skip,
		KindMediaGroup:   skip,
		KindMedia:        skip,
	}
}

// ADFToText renders an ADF document as markdown or plain text. Malformed
// JSON yields "" and a warning; unknown node kinds are skipped.
func ADFToText(raw []byte, markdown bool) string {
	root, err := ParseADF(raw)
	if err != nil {
		logging.Warn("failed to decode adf document", "error", err)
		return ""
	}
	if root == nil {
		return ""
	}
	w := newTextWriter(markdown)
	renderADF(w, *root)
	return w.String()
}

// ParseADF decodes an ADF document. JSON null decodes to a nil node.
func ParseADF(raw []byte) (*Node, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var root *Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to decode adf: %w", err)
	}
	return root, nil
}

func renderADF(w *textWriter, n Node) {
	if render, ok := adfRenderers[n.Kind]; ok {
		render(w, n)
	}
}

func renderADFChildren(w *textWriter, n Node) {
	for _, c := range n.Content {
		renderADF(w, c)
	}
}

func renderADFBlock(w *textWriter, n Node) {
	w.newline(2)
	renderADFChildren(w, n)
	w.newline(2)
}

func renderADFParagraph(w *textWriter, n Node) {
	w.newline(1)
	renderADFChildren(w, n)
	w.newline(1)
}

func renderADFHeading(w *textWriter, n Node) {
	level := n.attrInt("level")
	if level < 1 || level > 6 {
		level = 1
	}
	w.heading(level)
	renderADFChildren(w, n)
	w.newline(1)
}

func renderADFText(w *textWriter, n Node) {
	text := n.Text
	if w.inPre {
		w.text(text)
		return
	}

	var href string
	var opening, closing []string
	for _, m := range n.Marks {
		marker := ""
		switch m.Type {
		case "strong":
			marker = "**"
		case "em":
			marker = "_"
		case "code":
			marker = "`"
		case "strike":
			marker = "~~"
		case "link":
			if h, ok := m.Attrs["href"].(string); ok {
				href = h
			}
		}
		if marker != "" {
			opening = append(opening, marker)
			closing = append([]string{marker}, closing...)
		}
	}

	for _, s := range opening {
		w.markup(s)
	}
	w.text(text)
	for _, s := range closing {
		w.markup(s)
	}
	if href != "" && w.markdown && href != text {
		w.write(" (" + href + ")")
	}
}

func renderADFList(ordered bool) renderFunc {
	return func(w *textWriter, n Node) {
		w.startList(ordered, n.attrInt("order"))
		renderADFChildren(w, n)
		w.endList()
	}
}

func renderADFListItem(w *textWriter, n Node) {
	w.listItem()
	renderADFChildren(w, n)
}

func renderADFTaskItem(w *textWriter, n Node) {
	w.listItem()
	if strings.EqualFold(n.attrString("state"), "DONE") {
		w.write("[x] ")
	} else {
		w.write("[ ] ")
	}
	renderADFChildren(w, n)
}

func renderADFCodeBlock(w *textWriter, n Node) {
	w.startCode(n.attrString("language"))
	renderADFChildren(w, n)
	w.endCode()
}

func renderADFTableRow(w *textWriter, n Node) {
	var cells []string
	header := len(n.Content) > 0
	for _, c := range n.Content {
		switch c.Kind {
		case KindTableHeader:
		case KindTableCell:
			header = false
		default:
			continue
		}
		cw := newTextWriter(w.markdown)
		renderADFChildren(cw, c)
		cells = append(cells, cellText(cw.String()))
	}
	w.row(cells, header && len(cells) > 0)
}

func renderADFExpand(w *textWriter, n Node) {
	w.newline(2)
	if title := n.attrString("title"); title != "" {
		w.markup("**")
		w.text(title)
		w.markup("**")
		w.newline(1)
	}
	renderADFChildren(w, n)
	w.newline(2)
}

func renderADFMention(w *textWriter, n Node) {
	text := n.attrString("text")
	if text == "" {
		return
	}
	if !strings.HasPrefix(text, "@") {
		text = "@" + text
	}
	w.write(text)
}

func renderADFEmoji(w *textWriter, n Node) {
	if text := n.attrString("text"); text != "" {
		w.write(text)
		return
	}
	w.write(n.attrString("shortName"))
}

// renderADFDate prints the date attribute, a Unix timestamp in
// milliseconds, as YYYY-MM-DD.
func renderADFDate(w *textWriter, n Node) {
	ts := n.attrString("timestamp")
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		w.write(ts)
		return
	}
	w.write(time.UnixMilli(ms).UTC().Format("2006-01-02"))
}

func renderADFCard(w *textWriter, n Node) {
	if url := n.attrString("url"); url != "" {
		w.write(url)
	}
}
