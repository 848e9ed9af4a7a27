package ui

import (
	"errors"
	"io"

	"github.com/manifoldco/promptui"
)

// ErrCancelled is returned when the user interrupts a prompt.
var ErrCancelled = errors.New("cancelled by user")

// Confirm asks a yes/no question. Stdin and Stdout default to the terminal.
type Confirm struct {
	Label      string
	DefaultYes bool
	Stdin      io.ReadCloser
	Stdout     io.WriteCloser
}

// NewConfirm creates a new confirmation prompt.
func NewConfirm(label string, defaultYes bool) *Confirm {
	return &Confirm{Label: label, DefaultYes: defaultYes}
}

// Run shows the prompt and reports whether the user said yes.
func (c *Confirm) Run() (bool, error) {
	prompt := promptui.Prompt{
		Label:     c.Label,
		IsConfirm: true,
		Stdin:     c.Stdin,
		Stdout:    c.Stdout,
	}
	if c.DefaultYes {
		prompt.Default = "y"
	}

	_, err := prompt.Run()
	return answer(err)
}

func answer(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
		return false, ErrCancelled
	default:
		return false, err
	}
}
