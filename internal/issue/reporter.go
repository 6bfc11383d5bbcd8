package issue

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter formats issues against their originating source text: a colored
// severity header, a "--> file:line:column" location line, the
// offending source line, and a caret underline.
type Reporter struct {
	filename string
	lines    []string
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// Format renders a single issue as a multi-line string.
func (r *Reporter) Format(i Issue) string {
	var out strings.Builder

	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	level := r.levelColor(i.Severity)

	message := i.Message
	if message == "" {
		message = Describe(i.Kind)
	}
	out.WriteString(fmt.Sprintf("%s[%s]: %s\n", level(i.Severity.String()), i.Kind, message))

	if i.Position == NoPosition {
		out.WriteString("\n")
		return out.String()
	}

	width := lineNumberWidth(i.Position.Line)
	indent := strings.Repeat(" ", width)

	out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("-->"), i.Position))
	out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("|")))

	if i.Position.Line >= 1 && i.Position.Line <= len(r.lines) {
		line := r.lines[i.Position.Line-1]
		out.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, i.Position.Line)), dim("|"), line))
		out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("|"), r.marker(i.Position.Column, i.Length, i.Severity)))
	}

	for _, note := range i.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("|"), noteColor("note:"), note))
	}
	if i.Help != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("|"), helpColor("help:"), i.Help))
	}

	out.WriteString("\n")
	return out.String()
}

func (r *Reporter) levelColor(s Severity) func(...any) string {
	switch s {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Error, Fatal:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func (r *Reporter) marker(column, length int, severity Severity) string {
	if length <= 0 {
		length = 1
	}
	lead := strings.Repeat(" ", max(0, column-1))
	markerColor := color.New(color.FgRed, color.Bold).SprintFunc()
	if severity == Warning {
		markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	}
	return lead + markerColor(strings.Repeat("^", length))
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		return 3
	}
	return w
}
