// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package mdterm renders markdown as ANSI-styled terminal text. The
// console TUI uses it for transcript panes: agent output arrives as
// markdown and must reflow to whatever width the pane happens to
// have, so soft line breaks inside paragraphs become spaces and each
// block wraps at render time. Fenced code is syntax-highlighted with
// chroma when the language is known.
package mdterm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Theme holds the colors Render styles output with. Values are
// 256-color palette indices.
type Theme struct {
	// Text is the body color.
	Text lipgloss.Color
	// Faint is for code spans, links, and other secondary text.
	Faint lipgloss.Color
	// Heading is for level 1 and 2 headings.
	Heading lipgloss.Color
	// Rule is for thematic breaks and table separators.
	Rule lipgloss.Color
	// Done is for checked task boxes.
	Done lipgloss.Color
}

// DefaultTheme is a dark-background scheme matching the rest of the
// console TUI.
var DefaultTheme = Theme{
	Text:    lipgloss.Color("252"),
	Faint:   lipgloss.Color("245"),
	Heading: lipgloss.Color("255"),
	Rule:    lipgloss.Color("240"),
	Done:    lipgloss.Color("114"),
}

// The goldmark parser is configured once and shared: parsing state is
// per-call, the configured pipeline is immutable.
var (
	parser     goldmark.Markdown
	parserOnce sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parser
}

// Render parses markdown and produces styled terminal output wrapped
// to width. The trailing newline is trimmed so callers can place the
// result in a pane without a spurious blank row.
func Render(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := getParser().Parser().Parse(text.NewReader(source))

	// The output always goes to a terminal pane, never a pipe, so
	// force the ANSI256 profile instead of auto-detecting: detection
	// sees no TTY under tests and in tmux control mode and would
	// strip all color. SetColorProfile is needed on top of the
	// termenv option because lipgloss re-detects from the environment
	// unless the profile is set explicitly.
	styles := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	styles.SetColorProfile(termenv.ANSI256)

	w := &writer{
		source: source,
		theme:  theme,
		width:  width,
		styles: styles,
		// The start of output counts as blank-separated, so a leading
		// heading or code block does not emit blank rows first.
		newlines: 2,
	}
	ast.Walk(document, w.walk)
	return strings.TrimRight(w.out.String(), "\n")
}

// writer walks the goldmark AST and accumulates styled text. A direct
// ast.Walk fits terminal output better than goldmark's renderer
// registry: inline content must collect in a buffer and word-wrap as
// a unit when its block closes, which the streaming callbacks cannot
// express without an intermediate buffer anyway.
type writer struct {
	source []byte
	theme  Theme
	width  int
	styles *lipgloss.Renderer

	out strings.Builder

	// span collects styled inline fragments for the current
	// paragraph or heading; flushed with word-wrap when the block
	// closes.
	span strings.Builder

	// Prefix stack for nested containers (blockquotes, list bodies).
	prefixes    []prefix
	linePrefix  string
	prefixWidth int

	// bullet, when set, replaces the line prefix for exactly the
	// next emitted line. Carries list markers.
	bullet string

	// Nesting counters for inline styles. Counters rather than
	// booleans so nested emphasis unwinds correctly.
	bold          int
	italic        int
	strikethrough int

	lists []listLevel

	// newlines tracks how many consecutive newlines end the output,
	// for blank-line management between blocks.
	newlines int
}

type prefix struct {
	text  string
	width int
}

type listLevel struct {
	ordered bool
	number  int
	tight   bool
}

func (w *writer) style() lipgloss.Style {
	return w.styles.NewStyle()
}

// contentWidth is the wrap width after subtracting nesting prefixes,
// clamped so deep nesting cannot wrap to absurdity.
func (w *writer) contentWidth() int {
	width := w.width - w.prefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (w *writer) pushPrefix(text string, width int) {
	w.prefixes = append(w.prefixes, prefix{text: text, width: width})
	w.linePrefix += text
	w.prefixWidth += width
}

func (w *writer) popPrefix() {
	if len(w.prefixes) == 0 {
		return
	}
	top := w.prefixes[len(w.prefixes)-1]
	w.prefixes = w.prefixes[:len(w.prefixes)-1]
	w.linePrefix = w.linePrefix[:len(w.linePrefix)-len(top.text)]
	w.prefixWidth -= top.width
}

func (w *writer) inTightList() bool {
	if len(w.lists) == 0 {
		return false
	}
	return w.lists[len(w.lists)-1].tight
}

// emit appends text to the output, tracking trailing newlines.
func (w *writer) emit(s string) {
	if s == "" {
		return
	}
	w.out.WriteString(s)

	trailing := 0
	allNewlines := true
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			trailing++
		} else {
			allNewlines = false
			break
		}
	}
	if allNewlines {
		w.newlines += trailing
	} else {
		w.newlines = trailing
	}
}

func (w *writer) breakLine() {
	if w.newlines < 1 {
		w.emit("\n")
	}
}

func (w *writer) blankLine() {
	for w.newlines < 2 {
		w.emit("\n")
	}
}

// takePrefix returns the prefix for the current line: the pending
// bullet exactly once, the regular prefix otherwise.
func (w *writer) takePrefix() string {
	if w.bullet != "" {
		b := w.bullet
		w.bullet = ""
		return b
	}
	return w.linePrefix
}

// prefixLines prepends the line prefix to every line of content; the
// first line consumes the pending bullet if one is set.
func (w *writer) prefixLines(content string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i == 0 {
			b.WriteString(w.takePrefix())
		} else {
			b.WriteString(w.linePrefix)
		}
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// flushSpan word-wraps the accumulated inline content, applies line
// prefixes, and resets the buffer.
func (w *writer) flushSpan() string {
	content := w.span.String()
	w.span.Reset()
	if content == "" {
		return ""
	}
	wrapped := ansi.Wrap(content, w.contentWidth(), " ,.;-+|")
	return w.prefixLines(wrapped)
}

// styled applies the current inline style state to a fragment.
func (w *writer) styled(content string) string {
	style := w.style().Foreground(w.theme.Text)
	if w.bold > 0 {
		style = style.Bold(true)
	}
	if w.italic > 0 {
		style = style.Italic(true)
	}
	if w.strikethrough > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

// collectInline renders a node's children to a string without
// disturbing the caller's span buffer or style counters.
func (w *writer) collectInline(node ast.Node) string {
	savedSpan := w.span.String()
	savedBold, savedItalic, savedStrike := w.bold, w.italic, w.strikethrough

	w.span.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, w.walk)
	}
	result := w.span.String()

	w.span.Reset()
	w.span.WriteString(savedSpan)
	w.bold, w.italic, w.strikethrough = savedBold, savedItalic, savedStrike
	return result
}

// highlight syntax-highlights code with chroma, falling back to faint
// plain text when the language is unknown or empty.
func (w *writer) highlight(code, language string) string {
	if language == "" {
		return w.style().Foreground(w.theme.Faint).Render(code)
	}
	var b strings.Builder
	if err := quick.Highlight(&b, code, language, "terminal256", "monokai"); err != nil {
		return w.style().Foreground(w.theme.Faint).Render(code)
	}
	return b.String()
}

func (w *writer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			w.span.Reset()
		} else {
			flushed := w.flushSpan()
			if flushed != "" {
				w.emit(flushed)
				w.breakLine()
				if !w.inTightList() {
					w.blankLine()
				}
			}
		}

	case ast.KindHeading:
		if entering {
			w.span.Reset()
		} else {
			w.leaveHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			w.fencedCode(node.(*ast.FencedCodeBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			w.indentedCode(node.(*ast.CodeBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			w.pushPrefix("│ ", 2)
		} else {
			w.popPrefix()
			w.blankLine()
		}

	case ast.KindList:
		if entering {
			w.enterList(node.(*ast.List))
		} else {
			w.leaveList()
		}

	case ast.KindListItem:
		if entering {
			w.enterListItem()
		} else {
			w.leaveListItem()
		}

	case ast.KindThematicBreak:
		if entering {
			w.rule()
		}

	case ast.KindHTMLBlock:
		if entering {
			w.htmlBlock(node.(*ast.HTMLBlock))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindText:
		if entering {
			w.handleText(node.(*ast.Text))
		}

	case ast.KindString:
		if entering {
			w.span.WriteString(w.styled(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		if node.(*ast.Emphasis).Level >= 2 {
			if entering {
				w.bold++
			} else {
				w.bold--
			}
		} else {
			if entering {
				w.italic++
			} else {
				w.italic--
			}
		}

	case ast.KindCodeSpan:
		if entering {
			w.codeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			w.link(node.(*ast.Link))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(w.source))
			w.span.WriteString(w.style().Foreground(w.theme.Faint).Render(url))
		}

	case ast.KindImage:
		if entering {
			w.image(node.(*ast.Image))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			w.rawHTML(node.(*ast.RawHTML))
		}

	case extast.KindStrikethrough:
		if entering {
			w.strikethrough++
		} else {
			w.strikethrough--
		}

	case extast.KindTable:
		if entering {
			w.table(node)
			return ast.WalkSkipChildren, nil
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				done := w.style().Foreground(w.theme.Done)
				w.span.WriteString(done.Render("[x]") + " ")
			} else {
				w.span.WriteString(w.styled("[ ] "))
			}
		}
	}

	return ast.WalkContinue, nil
}

func (w *writer) leaveHeading(heading *ast.Heading) {
	// Headings replace inline styling wholesale, so strip what the
	// text handlers already applied.
	content := ansi.Strip(w.span.String())
	w.span.Reset()
	if content == "" {
		return
	}

	style := w.style().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(w.theme.Heading)
	} else {
		style = style.Foreground(w.theme.Text)
	}

	wrapped := ansi.Wrap(style.Render(content), w.contentWidth(), " ,.;-+|")
	w.blankLine()
	w.emit(w.prefixLines(wrapped))
	w.breakLine()
	w.blankLine()
}

func (w *writer) blockText(lines *text.Segments) string {
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		b.Write(lines.At(i).Value(w.source))
	}
	return b.String()
}

func (w *writer) fencedCode(node *ast.FencedCodeBlock) {
	language := string(node.Language(w.source))
	highlighted := w.highlight(w.blockText(node.Lines()), language)

	w.blankLine()
	for _, line := range strings.Split(strings.TrimRight(highlighted, "\n"), "\n") {
		w.emit(w.takePrefix() + line)
		w.breakLine()
	}
	w.blankLine()
}

func (w *writer) indentedCode(node *ast.CodeBlock) {
	faint := w.style().Foreground(w.theme.Faint)
	code := strings.TrimRight(w.blockText(node.Lines()), "\n")

	w.blankLine()
	for _, line := range strings.Split(code, "\n") {
		w.emit(w.takePrefix() + faint.Render(line))
		w.breakLine()
	}
	w.blankLine()
}

func (w *writer) enterList(list *ast.List) {
	start := 0
	if list.IsOrdered() {
		start = list.Start
	}
	w.lists = append(w.lists, listLevel{
		ordered: list.IsOrdered(),
		number:  start,
		tight:   list.IsTight,
	})
}

func (w *writer) leaveList() {
	if len(w.lists) > 0 {
		w.lists = w.lists[:len(w.lists)-1]
	}
	if !w.inTightList() {
		w.blankLine()
	}
}

func (w *writer) enterListItem() {
	if len(w.lists) == 0 {
		return
	}
	top := &w.lists[len(w.lists)-1]

	var marker string
	if top.ordered {
		marker = fmt.Sprintf("%d. ", top.number)
		top.number++
	} else {
		marker = "- "
	}

	// Markers are ASCII, so byte length is visual width.
	markerWidth := len(marker)

	// The bullet replaces the whole prefix for the item's first
	// line; continuation lines get matching indentation.
	w.bullet = w.linePrefix + marker
	w.pushPrefix(strings.Repeat(" ", markerWidth), markerWidth)
}

func (w *writer) leaveListItem() {
	w.popPrefix()
	if !w.inTightList() {
		w.blankLine()
	} else {
		w.breakLine()
	}
}

func (w *writer) rule() {
	line := strings.Repeat("─", w.contentWidth())
	styled := w.style().Foreground(w.theme.Rule).Render(line)
	w.blankLine()
	w.emit(w.prefixLines(styled))
	w.breakLine()
	w.blankLine()
}

func (w *writer) htmlBlock(node *ast.HTMLBlock) {
	stripped := strings.TrimSpace(stripTags(w.blockText(node.Lines())))
	if stripped == "" {
		return
	}
	faint := w.style().Foreground(w.theme.Faint)
	w.emit(w.prefixLines(faint.Render(stripped)))
	w.breakLine()
	w.blankLine()
}

func (w *writer) handleText(node *ast.Text) {
	w.span.WriteString(w.styled(string(node.Segment.Value(w.source))))

	if node.SoftLineBreak() {
		// Soft breaks become spaces so hard-wrapped source reflows
		// at the pane's width.
		w.span.WriteString(" ")
	}
	if node.HardLineBreak() {
		w.span.WriteString("\n")
	}
}

func (w *writer) codeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			code.Write(c.Segment.Value(w.source))
		case *ast.String:
			code.Write(c.Value)
		}
	}
	w.span.WriteString(w.style().Foreground(w.theme.Faint).Render(code.String()))
}

func (w *writer) link(node *ast.Link) {
	// collectInline already styles the link text.
	display := w.collectInline(node)
	w.span.WriteString(display)
	if url := string(node.Destination); url != "" {
		faint := w.style().Foreground(w.theme.Faint)
		w.span.WriteString(" " + faint.Render("("+url+")"))
	}
}

func (w *writer) image(node *ast.Image) {
	alt := w.collectInline(node)
	faint := w.style().Foreground(w.theme.Faint)
	w.span.WriteString(faint.Render("[" + alt + "]"))
	if url := string(node.Destination); url != "" {
		w.span.WriteString(" " + faint.Render("("+url+")"))
	}
}

func (w *writer) rawHTML(node *ast.RawHTML) {
	var html strings.Builder
	for i := 0; i < node.Segments.Len(); i++ {
		html.Write(node.Segments.At(i).Value(w.source))
	}
	if stripped := stripTags(html.String()); stripped != "" {
		w.span.WriteString(w.style().Foreground(w.theme.Faint).Render(stripped))
	}
}

func (w *writer) table(node ast.Node) {
	table := node.(*extast.Table)
	alignments := table.Alignments

	var header []string
	var rows [][]string
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader:
			header = w.tableRow(child)
		case extast.KindTableRow:
			rows = append(rows, w.tableRow(child))
		}
	}

	columns := len(header)
	if columns == 0 && len(rows) > 0 {
		columns = len(rows[0])
	}
	if columns == 0 {
		return
	}

	widths := make([]int, columns)
	measure := func(cells []string) {
		for i, cell := range cells {
			if i < columns {
				if cw := lipgloss.Width(cell); cw > widths[i] {
					widths[i] = cw
				}
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	// When the table is wider than the pane, shrink columns
	// proportionally with a 3-character floor.
	const gap = "  "
	total := len(gap) * (columns - 1)
	for _, cw := range widths {
		total += cw
	}
	available := w.contentWidth()
	if total > available {
		usable := available - len(gap)*(columns-1)
		if usable < columns*3 {
			usable = columns * 3
		}
		for i := range widths {
			widths[i] = (widths[i] * usable) / total
			if widths[i] < 3 {
				widths[i] = 3
			}
		}
	}

	w.blankLine()

	if len(header) > 0 {
		bold := w.style().Bold(true).Foreground(w.theme.Text)
		w.emit(w.takePrefix() + w.formatRow(header, widths, alignments, bold))
		w.breakLine()

		parts := make([]string, len(widths))
		for i, cw := range widths {
			parts[i] = strings.Repeat("─", cw)
		}
		ruleStyle := w.style().Foreground(w.theme.Rule)
		w.emit(w.linePrefix + ruleStyle.Render(strings.Join(parts, gap)))
		w.breakLine()
	}

	for _, row := range rows {
		w.emit(w.linePrefix + w.formatRow(row, widths, alignments, w.style()))
		w.breakLine()
	}

	w.blankLine()
}

func (w *writer) tableRow(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			cells = append(cells, w.collectInline(cell))
		}
	}
	return cells
}

func (w *writer) formatRow(cells []string, widths []int, alignments []extast.Alignment, base lipgloss.Style) string {
	const gap = "  "
	parts := make([]string, 0, len(widths))
	for i, width := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}

		visible := lipgloss.Width(cell)
		if visible > width {
			cell = ansi.Truncate(cell, width, "…")
			visible = lipgloss.Width(cell)
		}
		pad := width - visible
		if pad < 0 {
			pad = 0
		}

		var alignment extast.Alignment
		if i < len(alignments) {
			alignment = alignments[i]
		}
		switch alignment {
		case extast.AlignRight:
			cell = strings.Repeat(" ", pad) + cell
		case extast.AlignCenter:
			left := pad / 2
			cell = strings.Repeat(" ", left) + cell + strings.Repeat(" ", pad-left)
		default:
			cell = cell + strings.Repeat(" ", pad)
		}
		parts = append(parts, cell)
	}
	return base.Render(strings.Join(parts, gap))
}

// stripTags drops HTML tags, keeping text content. Chat transcripts
// rarely contain markup; what little appears reads better bare.
func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
