// Package console renders the diagnostic output shown when no transport is
// configured: coloured celery script, errors and HTTP status summaries.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"

	"github.com/larsen-farm/plugintools/pkg/celery"
)

// ANSI colour codes.
const (
	Reset   = 0
	Bold    = 1
	Red     = 31
	Green   = 32
	Yellow  = 33
	Blue    = 34
	Magenta = 35
	Cyan    = 36
)

// Printer writes to an output stream, colouring when enabled.
type Printer struct {
	out   io.Writer
	color bool
}

// New returns a Printer writing to out.
func New(out io.Writer, color bool) *Printer {
	return &Printer{out: out, color: color}
}

// Stdout returns a Printer on os.Stdout with colour resolved from mode
// ("auto", "always" or "never").
func Stdout(mode string) *Printer {
	return New(os.Stdout, ColorEnabled(mode, os.Stdout))
}

// Discard returns a Printer that drops everything.
func Discard() *Printer { return New(io.Discard, false) }

// ColorEnabled resolves a colour mode for f. "auto" colours only terminals.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) paint(code int, text string) string {
	if !p.color {
		return text
	}
	return "\033[" + strconv.Itoa(code) + "m" + text + "\033[0m"
}

// Println writes one line.
func (p *Printer) Println(text string) {
	fmt.Fprintln(p.out, text)
}

// Error renders text in red.
func (p *Printer) Error(text string) string { return p.paint(Red, text) }

// Bold renders text in bold.
func (p *Printer) Bold(text string) string { return p.paint(Bold, text) }

// StatusCode colours 4xx red, 2xx green and everything else bold.
func (p *Printer) StatusCode(code int) string {
	s := strconv.Itoa(code)
	switch s[0] {
	case '4':
		return p.paint(Red, s)
	case '2':
		return p.paint(Green, s)
	default:
		return p.paint(Bold, s)
	}
}

// CeleryScript renders cmd in its wire shape with the kind magenta, args
// cyan and body blue. The body is omitted when absent.
func (p *Printer) CeleryScript(cmd celery.Command) string {
	args := cmd.Args
	if args == nil {
		args = map[string]any{}
	}
	s := `{"kind": "` + p.paint(Magenta, cmd.Kind) + `", "args": ` + p.paint(Cyan, compact(args))
	if cmd.Body != nil {
		s += `, "body": ` + p.paint(Blue, compact(cmd.Body))
	}
	return s + "}"
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
