package arc42

import (
	"bytes"
	"strings"

	"github.com/danielolaszy/archprompt/internal/logging"
	"github.com/danielolaszy/archprompt/internal/normalize"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Options tune an Extractor.
type Options struct {
	// Levels lists the markdown heading levels that may open a section.
	// Plain lines are always eligible. Empty means every level.
	Levels []int
	// MaxChars truncates each section body; zero disables truncation.
	MaxChars int
	Policy   DuplicatePolicy
	// Debug keeps text before the first recognized heading under PreambleKey.
	Debug bool
}

// Extractor partitions documents into arc42 sections.
type Extractor struct {
	vocab  *Vocabulary
	opts   Options
	levels map[int]bool
}

// NewExtractor returns an Extractor for the vocabulary.
func NewExtractor(vocab *Vocabulary, opts Options) *Extractor {
	if opts.Policy == "" {
		opts.Policy = LastWins
	}
	levels := make(map[int]bool, len(opts.Levels))
	for _, l := range opts.Levels {
		levels[l] = true
	}
	return &Extractor{vocab: vocab, opts: opts, levels: levels}
}

func (e *Extractor) eligible(level int) bool {
	return level == 0 || len(e.levels) == 0 || e.levels[level]
}

// collector accumulates section bodies and applies the duplicate policy.
type collector struct {
	e        *Extractor
	out      Sections
	preamble []string

	open  bool
	key   string
	level int
	buf   []string
}

func (c *collector) start(key string, level int) {
	c.flush()
	c.open, c.key, c.level, c.buf = true, key, level, nil
}

func (c *collector) close() {
	c.flush()
	c.open = false
}

func (c *collector) flush() {
	if !c.open {
		return
	}
	body := normalize.Truncate(strings.TrimSpace(strings.Join(c.buf, "\n")), c.e.opts.MaxChars)
	c.buf = nil

	if existing, ok := c.out.Get(c.key); ok {
		if c.e.opts.Policy == FirstWins && existing != "" {
			logging.Debug("duplicate arc42 heading ignored", "section", c.key, "policy", string(FirstWins))
			return
		}
		logging.Debug("duplicate arc42 heading replaces earlier body", "section", c.key, "policy", string(c.e.opts.Policy))
	}
	c.out.Set(c.key, strings.TrimSpace(body))
}

func (c *collector) add(line string, seenHeading bool) {
	switch {
	case c.open:
		c.buf = append(c.buf, line)
	case !seenHeading:
		c.preamble = append(c.preamble, line)
	}
}

func (c *collector) result() Sections {
	c.flush()
	if !c.e.opts.Debug {
		return c.out
	}
	pre := strings.TrimSpace(strings.Join(c.preamble, "\n"))
	if pre == "" {
		return c.out
	}
	return append(Sections{{Key: PreambleKey, Body: pre}}, c.out...)
}

// Extract splits normalized text into sections. A line consisting solely of a
// recognized heading starts a section that runs until the next recognized
// heading. An unrecognized markdown heading at the same or a higher level as
// the open section closes it. Lines inside ``` fences are never headings.
func (e *Extractor) Extract(text string) Sections {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	c := &collector{e: e}
	seenHeading := false
	inFence := false

	for _, line := range strings.Split(text, "\n") {
		if isFence(line) {
			inFence = !inFence
			c.add(line, seenHeading)
			continue
		}
		if inFence {
			c.add(line, seenHeading)
			continue
		}
		level, title := markdownHeading(line)
		if e.eligible(level) && strings.TrimSpace(title) != "" {
			if key, ok := e.vocab.Match(title); ok {
				c.start(key, level)
				seenHeading = true
				continue
			}
		}
		if level > 0 && c.open && c.level > 0 && level <= c.level {
			c.close()
			continue
		}
		c.add(line, seenHeading)
	}

	return c.result()
}

// ExtractHTML splits a storage HTML body into sections whose bodies are the
// rendered HTML of the nodes between headings. Containers that hold headings,
// such as ac:layout cells, are unwrapped so their children are seen in
// document order.
func (e *Extractor) ExtractHTML(storage string) Sections {
	nodes, err := normalize.ParseFragment(storage)
	if err != nil {
		logging.Warn("failed to parse storage html, no sections extracted", "error", err)
		return nil
	}
	nodes = unwrap(nodes)

	c := &collector{e: e}
	seenHeading := false

	for _, n := range nodes {
		if level := headingLevel(n); level > 0 {
			title := nodeText(n)
			if e.eligible(level) {
				if key, ok := e.vocab.Match(title); ok {
					c.start(key, level)
					seenHeading = true
					continue
				}
			}
			if c.open && level <= c.level {
				c.close()
				continue
			}
		}

		var buf bytes.Buffer
		if err := html.Render(&buf, n); err != nil {
			logging.Warn("failed to render html fragment", "error", err)
			continue
		}
		c.add(buf.String(), seenHeading)
	}

	return c.result()
}

// Heading is one heading line found in a document.
type Heading struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	// Key is the canonical section the heading maps to, if any.
	Key string `json:"key,omitempty"`
}

// Headings lists markdown heading lines and plain lines that match the
// vocabulary, in document order.
func (e *Extractor) Headings(text string) []Heading {
	var out []Heading
	inFence := false
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		level, title := markdownHeading(line)
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		key, ok := e.vocab.Match(title)
		if level == 0 && !ok {
			continue
		}
		h := Heading{Level: level, Title: title}
		if ok && e.eligible(level) {
			h.Key = key
		}
		out = append(out, h)
	}
	return out
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// unwrap replaces every element that contains a heading with its children,
// recursively.
func unwrap(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode || headingLevel(n) > 0 || !containsHeading(n) {
			out = append(out, n)
			continue
		}
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		out = append(out, unwrap(children)...)
	}
	return out
}

func containsHeading(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if headingLevel(c) > 0 || containsHeading(c) {
			return true
		}
	}
	return false
}

func headingLevel(n *html.Node) int {
	if n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
