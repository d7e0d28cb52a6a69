package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when confirmation is needed but stdin is
// not a terminal.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (use --yes)")

// Prompt asks yes/no questions on the terminal. The zero value reads from
// os.Stdin and writes to os.Stderr.
type Prompt struct {
	Stdin  io.ReadCloser
	Stdout io.Writer

	// isTerminal and readLine are replaced in tests.
	isTerminal func() bool
	readLine   func(prompt string) (string, error)
}

// Confirm shows prompt followed by "[y/N]" and reports whether the user
// answered yes. Ctrl+C and Ctrl+D count as no.
func (p *Prompt) Confirm(prompt string) (bool, error) {
	isTerminal := p.isTerminal
	if isTerminal == nil {
		isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	}
	if !isTerminal() {
		return false, ErrNotInteractive
	}

	readLine := p.readLine
	if readLine == nil {
		readLine = p.readlineInput
	}
	line, err := readLine(prompt + " [y/N]: ")
	switch {
	case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return parseAnswer(line), nil
}

func (p *Prompt) readlineInput(prompt string) (string, error) {
	stdout := p.Stdout
	if stdout == nil {
		stdout = os.Stderr
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		Stdin:           p.Stdin,
		Stdout:          stdout,
		InterruptPrompt: "^C",
		EOFPrompt:       "no",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()
	return rl.Readline()
}

func parseAnswer(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// AutoConfirm answers every question with yes. It backs --yes.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(string) (bool, error) { return true, nil }
