// Package pager shows stage artifacts in a scrollable terminal view.
package pager

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// View is one artifact to show.
type View struct {
	Title string
	Path  string
	Lines []string
}

// ReadLines returns the lines of the file at path.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 4<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// Run pages the view when stdout is a terminal too small to hold it, and
// prints it otherwise.
func Run(v View) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return Print(os.Stdout, v.Lines)
	}
	// border plus status line
	if _, height, err := term.GetSize(fd); err == nil && len(v.Lines) <= height-3 {
		return Print(os.Stdout, v.Lines)
	}
	return show(v)
}

// Print writes lines to w.
func Print(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// diagnostic markers of compilers, make and configure scripts
var diagnostics = []string{"error:", "error ", "*** ", "undefined reference", "fatal:", "configure: error"}

// IsDiagnostic reports whether a log line looks like a build failure.
func IsDiagnostic(line string) bool {
	l := strings.ToLower(line)
	for _, d := range diagnostics {
		if strings.Contains(l, d) {
			return true
		}
	}
	return false
}

// Find returns the first line after from (or before it, backwards) that
// match accepts, wrapping around the ends. -1 means no line matches.
func Find(lines []string, from int, forward bool, match func(string) bool) int {
	n := len(lines)
	if n == 0 {
		return -1
	}
	step := 1
	if !forward {
		step = -1
	}
	for i := 1; i <= n; i++ {
		idx := ((from+step*i)%n + n) % n
		if match(lines[idx]) {
			return idx
		}
	}
	return -1
}

// Contains is the case-insensitive matcher behind '/'.
func Contains(query string) func(string) bool {
	q := strings.ToLower(query)
	return func(line string) bool {
		return q != "" && strings.Contains(strings.ToLower(line), q)
	}
}

// Status renders the bottom line: artifact path, position and the last search.
func Status(v View, row int, query, note string) string {
	s := fmt.Sprintf("%s  line %d/%d", v.Path, min(row+1, len(v.Lines)), len(v.Lines))
	if query != "" {
		s += "  /" + query
	}
	if note != "" {
		s += "  " + note
	}
	return s
}

const keyHelp = "/ search  n/N next/prev  e next error  g/G top/end  q quit"

func show(v View) error {
	app := tview.NewApplication()

	body := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	body.SetBorder(true).SetTitle(" " + v.Title + " ")

	// compiler diagnostics carry ANSI colors
	fmt.Fprint(tview.ANSIWriter(body), strings.Join(v.Lines, "\n"))
	body.ScrollToEnd()

	status := tview.NewTextView().SetDynamicColors(true)
	prompt := tview.NewInputField().SetLabel("/")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(status, 1, 0, false)

	query := ""
	refresh := func(note string) {
		row, _ := body.GetScrollOffset()
		status.SetText("[gray]" + tview.Escape(Status(v, row, query, note)) + "  " + keyHelp + "[white]")
	}
	jump := func(match func(string) bool, forward bool, miss string) {
		row, _ := body.GetScrollOffset()
		if idx := Find(v.Lines, row, forward, match); idx >= 0 {
			body.ScrollTo(idx, 0)
			refresh("")
			return
		}
		refresh(miss)
	}
	closePrompt := func() {
		layout.RemoveItem(prompt)
		layout.AddItem(status, 1, 0, false)
		app.SetFocus(body)
	}

	prompt.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			query = prompt.GetText()
		}
		closePrompt()
		if key == tcell.KeyEnter && query != "" {
			jump(Contains(query), true, "not found")
		}
	})

	body.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			app.Stop()
			return nil
		case tcell.KeyRune:
		default:
			return event
		}
		switch event.Rune() {
		case 'q':
			app.Stop()
		case '/':
			prompt.SetText("")
			layout.RemoveItem(status)
			layout.AddItem(prompt, 1, 0, true)
			app.SetFocus(prompt)
		case 'n', 'N':
			if query != "" {
				jump(Contains(query), event.Rune() == 'n', "not found")
			}
		case 'e':
			jump(IsDiagnostic, true, "no errors")
		case 'g':
			body.ScrollToBeginning()
			refresh("")
		case 'G':
			body.ScrollToEnd()
			refresh("")
		default:
			return event
		}
		return nil
	})
	refresh("")

	if err := app.SetRoot(layout, true).SetFocus(body).Run(); err != nil {
		return fmt.Errorf("failed to open %s: %w", v.Path, err)
	}
	return nil
}
