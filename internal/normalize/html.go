package normalize

import (
	"regexp"
	"strings"

	"github.com/danielolaszy/archprompt/internal/logging"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	cdataSection = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	// The HTML parser ignores "/>" on unknown elements, which would make a
	// self-closed <ri:page/> swallow its following siblings.
	selfClosingMacro = regexp.MustCompile(`<((?:ac|ri):[a-zA-Z-]+)(\s[^>]*?)?\s*/>`)
)

// ParseFragment parses an HTML or Confluence storage fragment in a body
// context. CDATA sections, which storage markup uses for code macro bodies,
// become escaped text and self-closed Confluence elements are expanded.
func ParseFragment(s string) ([]*html.Node, error) {
	s = cdataSection.ReplaceAllStringFunc(s, func(m string) string {
		return html.EscapeString(cdataSection.FindStringSubmatch(m)[1])
	})
	s = selfClosingMacro.ReplaceAllString(s, "<$1$2></$1>")
	return html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
}

// HTMLToText converts an HTML or Confluence storage fragment to markdown
// (markdown true) or plain text. Confluence macros are dropped except for
// their plain-text and rich-text bodies. Conversion is best effort: a
// fragment that cannot be parsed yields "".
func HTMLToText(s string, markdown bool) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	nodes, err := ParseFragment(s)
	if err != nil {
		logging.Warn("failed to parse html fragment", "error", err)
		return ""
	}

	w := newTextWriter(markdown)
	for _, n := range nodes {
		renderHTML(w, n)
	}
	return w.String()
}

func renderHTML(w *textWriter, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
	default:
		renderHTMLChildren(w, n)
		return
	}

	if strings.HasPrefix(n.Data, "ac:") || strings.HasPrefix(n.Data, "ri:") {
		renderMacro(w, n)
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Img, atom.Svg, atom.Object, atom.Iframe:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.heading(int(n.Data[1] - '0'))
		renderHTMLChildren(w, n)
		w.newline(1)
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer:
		w.newline(1)
		renderHTMLChildren(w, n)
		w.newline(1)
	case atom.Blockquote:
		w.newline(2)
		renderHTMLChildren(w, n)
		w.newline(2)
	case atom.Br:
		w.sb.WriteByte('\n')
	case atom.Ul:
		w.startList(false, 1)
		renderHTMLChildren(w, n)
		w.endList()
	case atom.Ol:
		w.startList(true, 1)
		renderHTMLChildren(w, n)
		w.endList()
	case atom.Li:
		w.listItem()
		renderHTMLChildren(w, n)
	case atom.Strong, atom.B:
		w.markup("**")
		renderHTMLChildren(w, n)
		w.markup("**")
	case atom.Em, atom.I:
		w.markup("_")
		renderHTMLChildren(w, n)
		w.markup("_")
	case atom.Code:
		if w.inPre {
			renderHTMLChildren(w, n)
			return
		}
		w.markup("`")
		renderHTMLChildren(w, n)
		w.markup("`")
	case atom.Pre:
		w.startCode("")
		renderHTMLChildren(w, n)
		w.endCode()
	case atom.Hr:
		w.rule()
	case atom.Table:
		w.newline(2)
		renderHTMLChildren(w, n)
		w.newline(2)
	case atom.Tr:
		cells, header := tableRow(w.markdown, n)
		w.row(cells, header)
	case atom.A:
		renderHTMLChildren(w, n)
		if href := attr(n, "href"); href != "" && w.markdown {
			w.write(" (" + href + ")")
		}
	default:
		renderHTMLChildren(w, n)
	}
}

func renderHTMLChildren(w *textWriter, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderHTML(w, c)
	}
}

// renderMacro handles Confluence storage elements (ac:*, ri:*).
func renderMacro(w *textWriter, n *html.Node) {
	switch n.Data {
	case "ac:plain-text-body":
		w.startCode(macroParameter(n.Parent, "language"))
		renderHTMLChildren(w, n)
		w.endCode()
	case "ac:plain-text-link-body", "ac:link-body", "ac:rich-text-body", "ac:task-body":
		renderHTMLChildren(w, n)
	case "ac:parameter", "ac:image", "ac:emoticon", "ac:placeholder":
		return
	case "ac:task":
		w.listItem()
		renderHTMLChildren(w, n)
	case "ac:task-status", "ac:task-id":
		return
	default:
		if strings.HasPrefix(n.Data, "ri:") {
			return
		}
		// Layouts, structured macros and links: only nested bodies carry text.
		renderHTMLChildren(w, n)
	}
}

func macroParameter(macro *html.Node, name string) string {
	if macro == nil {
		return ""
	}
	for c := macro.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ac:parameter" && attr(c, "ac:name") == name {
			return strings.TrimSpace(nodeText(c))
		}
	}
	return ""
}

// tableRow renders the cells of a <tr>. A row made only of <th> cells is a
// header row.
func tableRow(markdown bool, tr *html.Node) ([]string, bool) {
	var cells []string
	header := true
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Th:
		case atom.Td:
			header = false
		default:
			continue
		}
		cw := newTextWriter(markdown)
		renderHTMLChildren(cw, c)
		cells = append(cells, cellText(cw.String()))
	}
	return cells, header && len(cells) > 0
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return sb.String()
}
