package commands

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"epoch/internal/verify"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// signPrompt reads log ids one per line and signs each of them until an
// empty line is entered or nothing is left to sign.
type signPrompt struct {
	ctx     context.Context
	pending *verify.Pending
	input   textinput.Model
	lines   []string
	err     error
}

// inputClosedMsg reports that a non-terminal input reached EOF.
type inputClosedMsg struct{}

func newSignPrompt(ctx context.Context, p *verify.Pending) signPrompt {
	ti := textinput.New()
	ti.Prompt = "Log id to sign (empty to finish): "
	ti.Placeholder = "e.g. 42"
	ti.CharLimit = 20
	ti.PromptStyle = mutedStyle
	ti.Focus()
	return signPrompt{ctx: ctx, pending: p, input: ti}
}

func (m signPrompt) Init() tea.Cmd { return textinput.Blink }

func (m signPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case inputClosedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter", "ctrl+j":
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m signPrompt) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return m, tea.Quit
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(line, "#"), 10, 64)
	if err != nil {
		m.lines = append(m.lines, errStyle.Render("Please enter a numeric log id."))
		return m, nil
	}
	if err := m.pending.Sign(m.ctx, id); err != nil {
		if errors.Is(err, verify.ErrUnknownTransaction) {
			m.lines = append(m.lines, errStyle.Render(err.Error()))
			return m, nil
		}
		m.err = err
		return m, tea.Quit
	}
	m.lines = append(m.lines, okStyle.Render("Signed #"+strconv.FormatInt(id, 10)))
	if m.pending.Len() == 0 {
		return m, tea.Quit
	}
	return m, nil
}

func (m signPrompt) View() string {
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(l + "\n")
	}
	if m.pending.Len() > 0 {
		b.WriteString(m.input.View() + "\n")
	}
	return b.String()
}

// runSignPrompt runs the prompt on rt's input and output.
func (rt *runtime) runSignPrompt(ctx context.Context, p *verify.Pending) error {
	in := rt.in
	var piped *eofReader
	if _, ok := rt.in.(*os.File); !ok {
		piped = &eofReader{r: rt.in}
		in = piped
	}
	prog := tea.NewProgram(newSignPrompt(ctx, p), tea.WithInput(in), tea.WithOutput(rt.out), tea.WithContext(ctx))
	if piped != nil {
		piped.onEOF = func() { prog.Send(inputClosedMsg{}) }
	}
	final, err := prog.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(signPrompt); ok {
		return m.err
	}
	return nil
}

// eofReader calls onEOF once the underlying reader is drained, after every
// byte before it has been handed out.
type eofReader struct {
	r     io.Reader
	eof   bool
	onEOF func()
}

func (e *eofReader) Read(b []byte) (int, error) {
	if e.eof {
		e.closed()
		return 0, io.EOF
	}
	n, err := e.r.Read(b)
	if errors.Is(err, io.EOF) {
		if n > 0 {
			e.eof = true
			return n, nil
		}
		e.closed()
	}
	return n, err
}

func (e *eofReader) closed() {
	if e.onEOF != nil {
		e.onEOF()
		e.onEOF = nil
	}
}
