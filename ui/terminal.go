package ui

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Terminal is the controlling terminal, switched to raw mode.
type Terminal struct {
	in    *os.File
	out   *os.File
	state *term.State
}

// OpenTerminal puts in in raw mode. Close must be called to restore it.
func OpenTerminal(in, out *os.File) (*Terminal, error) {
	state, err := term.MakeRaw(int(in.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to set raw mode: %w", err)
	}
	return &Terminal{
		in:    in,
		out:   out,
		state: state,
	}, nil
}

func (t *Terminal) Size() (width, height int, err error) {
	return term.GetSize(int(t.out.Fd()))
}

func (t *Terminal) Write(p []byte) (int, error) {
	return t.out.Write(p)
}

func (t *Terminal) Read(p []byte) (int, error) {
	return t.in.Read(p)
}

// Close clears the screen and restores the terminal mode.
func (t *Terminal) Close() error {
	_, _ = t.out.WriteString("\x1b[0m\x1b[2J\x1b[H")
	return term.Restore(int(t.in.Fd()), t.state)
}
