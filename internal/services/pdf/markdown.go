package pdf

import (
	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownWriter renders a small markdown subset (paragraphs, emphasis,
// code spans and bullet lists) at the current position of the document
type markdownWriter struct {
	pdf        *fpdf.Fpdf
	source     []byte
	logger     arbor.ILogger
	translate  func(string) string
	font       string
	size       float64
	lineHeight float64
	indent     float64
	bold       bool
	italic     bool
	listLevel  int
}

func newMarkdownWriter(pdf *fpdf.Fpdf, translate func(string) string, logger arbor.ILogger, size, lineHeight float64) *markdownWriter {
	return &markdownWriter{
		pdf:        pdf,
		logger:     logger,
		translate:  translate,
		font:       bodyFont,
		size:       size,
		lineHeight: lineHeight,
	}
}

// write parses markdown and renders it, leaving the cursor below the output
func (r *markdownWriter) write(markdown string) error {
	r.source = []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(r.source))
	r.updateFont()
	err := ast.Walk(doc, r.walk)
	r.bold, r.italic = false, false
	r.updateFont()
	return err
}

func (r *markdownWriter) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *markdownWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		return r.handleParagraph(n, entering)
	case ast.KindText:
		return r.handleText(n.(*ast.Text), entering)
	case ast.KindEmphasis:
		return r.handleEmphasis(n.(*ast.Emphasis), entering)
	case ast.KindCodeSpan:
		return r.handleCodeSpan(n.(*ast.CodeSpan), entering)
	case ast.KindList:
		return r.handleList(entering)
	case ast.KindListItem:
		return r.handleListItem(entering)
	}
	return ast.WalkContinue, nil
}

func (r *markdownWriter) handleParagraph(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		r.pdf.Ln(r.lineHeight)
		if r.listLevel == 0 {
			r.pdf.Ln(r.lineHeight / 3)
		}
	}
	return ast.WalkContinue, nil
}

func (r *markdownWriter) handleText(n *ast.Text, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.pdf.Write(r.lineHeight, r.translate(string(n.Segment.Value(r.source))))
		if n.SoftLineBreak() || n.HardLineBreak() {
			r.pdf.Write(r.lineHeight, " ")
		}
	}
	return ast.WalkContinue, nil
}

func (r *markdownWriter) handleEmphasis(n *ast.Emphasis, entering bool) (ast.WalkStatus, error) {
	if n.Level == 2 {
		r.bold = entering
	} else {
		r.italic = entering
	}
	r.updateFont()
	return ast.WalkContinue, nil
}

func (r *markdownWriter) handleCodeSpan(n *ast.CodeSpan, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.pdf.SetFont("Courier", "", r.size)
		// CodeSpan is an inline element - iterate through children to get text
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if textNode, ok := c.(*ast.Text); ok {
				r.pdf.Write(r.lineHeight, r.translate(string(textNode.Segment.Value(r.source))))
			}
		}
	} else {
		r.updateFont() // Restore
	}
	return ast.WalkSkipChildren, nil
}

func (r *markdownWriter) handleList(entering bool) (ast.WalkStatus, error) {
	if entering {
		r.listLevel++
	} else {
		r.listLevel--
		if r.listLevel == 0 {
			r.pdf.SetLeftMargin(pageMargin)
			r.pdf.Ln(r.lineHeight / 3)
		}
	}
	return ast.WalkContinue, nil
}

func (r *markdownWriter) handleListItem(entering bool) (ast.WalkStatus, error) {
	if entering {
		indent := pageMargin + float64(r.listLevel)*bulletIndent
		r.pdf.SetLeftMargin(pageMargin + float64(r.listLevel-1)*bulletIndent)
		left, _, _, _ := r.pdf.GetMargins()
		r.pdf.SetX(left)
		r.pdf.Write(r.lineHeight, r.translate("• "))
		// wrapped lines align with the text after the bullet
		r.pdf.SetLeftMargin(indent)
	}
	return ast.WalkContinue, nil
}
