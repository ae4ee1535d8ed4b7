package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Output writes command results either as indented JSON or as colored text.
type Output struct {
	writer   io.Writer
	jsonMode bool
	color    bool
}

// NewOutput creates an Output for cmd. Color is only used when writing to a
// terminal.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	f, isFile := w.(*os.File)
	return &Output{
		writer:   w,
		jsonMode: jsonMode,
		color:    !jsonMode && isFile && isTerminal(f),
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// IsJSON reports whether --json was given.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON writes v as indented JSON.
func (o *Output) JSON(v interface{}) error {
	enc := json.NewEncoder(o.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

func (o *Output) Success(format string, args ...interface{}) { o.line(ColorGreen, format, args...) }
func (o *Output) Error(format string, args ...interface{})   { o.line(ColorRed, format, args...) }
func (o *Output) Warning(format string, args ...interface{}) { o.line(ColorYellow, format, args...) }
func (o *Output) Info(format string, args ...interface{})    { o.line(ColorCyan, format, args...) }
func (o *Output) Bold(format string, args ...interface{})    { o.line(ColorBold, format, args...) }
func (o *Output) Dim(format string, args ...interface{})     { o.line(ColorDim, format, args...) }

func (o *Output) line(color, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.ColoredString(color, fmt.Sprintf(format, args...)))
}

// ColoredString wraps text in color when color output is on.
func (o *Output) ColoredString(color, text string) string {
	if !o.color || color == "" {
		return text
	}
	return color + text + ColorReset
}

// Signed colors an already formatted value green when v > 0 and red when
// v < 0.
func (o *Output) Signed(v float64, formatted string) string {
	switch {
	case v > 0:
		return o.ColoredString(ColorGreen, formatted)
	case v < 0:
		return o.ColoredString(ColorRed, formatted)
	}
	return formatted
}

// Table renders aligned columns. Numeric cells are right aligned.
type Table struct {
	out     *Output
	headers []string
	rows    [][]string
}

func NewTable(out *Output, headers ...string) *Table {
	return &Table{out: out, headers: headers}
}

func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleWidth(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], visibleWidth(row[i]))
		}
	}

	t.out.Println(t.out.ColoredString(ColorBold, t.format(t.headers, widths)))
	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	t.out.Println(t.out.ColoredString(ColorDim, strings.Join(rule, "  ")))
	for _, row := range t.rows {
		t.out.Println(t.format(row, widths))
	}
}

func (t *Table) format(cells []string, widths []int) string {
	parts := make([]string, 0, len(widths))
	for i := 0; i < len(cells) && i < len(widths); i++ {
		pad := strings.Repeat(" ", widths[i]-visibleWidth(cells[i]))
		if numeric(cells[i]) {
			parts = append(parts, pad+cells[i])
		} else {
			parts = append(parts, cells[i]+pad)
		}
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

func visibleWidth(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}

// numeric reports whether a cell holds a formatted number such as "-1.2K",
// "+$30.00" or "45%".
func numeric(s string) bool {
	s = strings.TrimLeft(ansiPattern.ReplaceAllString(s, ""), "+-$")
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
