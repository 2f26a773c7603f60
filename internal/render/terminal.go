package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/cli/go-gh/v2/pkg/markdown"

	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/stream"
)

// Options configures a TerminalRenderer.
type Options struct {
	PlainText bool
	// Theme is a glamour style name; "" or "auto" follows the terminal background.
	Theme string
	Wrap  int
}

// TerminalRenderer projects session snapshots onto a terminal. It prints
// answer text as it grows and the metrics area once the session ends.
type TerminalRenderer struct {
	out       io.Writer
	markdown  *glamour.TermRenderer
	plainText bool
	wrap      int
	buffer    strings.Builder
	printed   int
	started   bool
	err       error

	label  lipgloss.Style
	notice lipgloss.Style
	failed lipgloss.Style
}

func NewTerminalRenderer(out io.Writer, opts Options) (*TerminalRenderer, error) {
	t := &TerminalRenderer{
		out:       out,
		plainText: opts.PlainText,
	}

	if !opts.PlainText {
		wrap := opts.Wrap
		if wrap <= 0 {
			wrap = 120
		}
		style := glamour.WithAutoStyle()
		if opts.Theme != "" && opts.Theme != "auto" {
			style = markdown.WithTheme(opts.Theme)
		}
		t.wrap = wrap
		md, err := glamour.NewTermRenderer(markdown.WithWrap(wrap), style)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		t.markdown = md
	}

	lg := lipgloss.NewRenderer(out)
	t.label = lg.NewStyle().Bold(true)
	t.notice = lg.NewStyle().Faint(true)
	t.failed = lg.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	return t, nil
}

// Err returns the first rendering error, if any.
func (t *TerminalRenderer) Err() error {
	return t.err
}

// Reset prepares the renderer for a new session.
func (t *TerminalRenderer) Reset() {
	t.buffer.Reset()
	t.printed = 0
	t.started = false
}

// Title prints the url and question a session is about.
func (t *TerminalRenderer) Title(url, question string) {
	if t.plainText {
		return
	}
	t.printf("%s %s\n%s %s\n\n",
		t.label.Render("URL:"), url,
		t.label.Render("Question:"), question)
}

// Update renders a snapshot. It implements session.Observer.
func (t *TerminalRenderer) Update(st stream.State) {
	if t.err != nil {
		return
	}
	if len(st.Answer) < t.printed {
		t.Reset()
	}
	if !t.started && st.Status == stream.Streaming && !t.plainText {
		t.printf("%s\n", t.notice.Render("Analyzing..."))
	}
	t.started = true

	if delta := st.Answer[t.printed:]; delta != "" {
		t.printed = len(st.Answer)
		t.write(delta)
	}

	if st.Status.Terminal() {
		t.flush()
		t.printf("\n")
		t.metrics(st)
	}
}

// write buffers answer text and renders it at paragraph breaks. A paragraph
// that grows past the wrap width is rendered a line at a time instead, so
// answers without blank lines still appear while they stream.
func (t *TerminalRenderer) write(delta string) {
	if t.plainText {
		t.printf("%s", delta)
		return
	}

	t.buffer.WriteString(delta)
	content := t.buffer.String()
	idx := findMarkdownBreakPoint(content)
	if idx < 0 && len(content) >= t.wrap {
		idx = findLineBreakPoint(content)
	}
	if idx > 0 {
		t.renderContent(content[:idx])
		// Reset buffer with remaining content
		remaining := content[idx:]
		t.buffer.Reset()
		t.buffer.WriteString(remaining)
	}
}

func (t *TerminalRenderer) flush() {
	if remaining := t.buffer.String(); remaining != "" {
		t.renderContent(remaining)
		t.buffer.Reset()
	}
}

func (t *TerminalRenderer) renderContent(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if strings.HasPrefix(content, "#") {
		t.printf("\n")
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		t.err = fmt.Errorf("failed to render markdown: %w", err)
		return
	}
	t.printf("%s\n", strings.TrimSpace(mdContent))
}

// metrics prints the area below the answer: an error, the metrics, or a notice.
func (t *TerminalRenderer) metrics(st stream.State) {
	switch {
	case st.Status == stream.Failed:
		t.printf("%s\n", t.failed.Render("Error: "+st.Err))
	case st.LatestMetrics != nil:
		t.printf("%s %.2f\n%s %s\n",
			t.label.Render("Relevance Score:"), st.LatestMetrics.RelevanceScore,
			t.label.Render("Source:"), st.LatestMetrics.Source)
	case st.Notice != "":
		t.printf("%s\n", t.notice.Render(st.Notice))
	}
}

func (t *TerminalRenderer) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	if _, err := fmt.Fprintf(t.out, format, args...); err != nil {
		t.err = fmt.Errorf("failed to write output: %w", err)
	}
}

func findMarkdownBreakPoint(content string) int {
	const marker string = "\n\n"
	lastBreak := -1
	idx := strings.LastIndex(content, marker)
	if idx > lastBreak {
		lastBreak = idx + len(marker)
	}
	return lastBreak
}

// findLineBreakPoint returns the offset just past the last newline, or past
// the last space when there is none.
func findLineBreakPoint(content string) int {
	if idx := strings.LastIndexByte(content, '\n'); idx >= 0 {
		return idx + 1
	}
	if idx := strings.LastIndexByte(content, ' '); idx >= 0 {
		return idx + 1
	}
	return -1
}
