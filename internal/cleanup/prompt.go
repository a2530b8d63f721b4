package cleanup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter handles all interactive questions. With AutoApprove set
// (the --yes flag) every confirmation returns true without reading
// input, but free-form questions still use their defaults.
type Prompter struct {
	in          *bufio.Reader
	out         io.Writer
	AutoApprove bool
}

func NewPrompter(in io.Reader, out io.Writer, autoApprove bool) *Prompter {
	return &Prompter{
		in:          bufio.NewReader(in),
		out:         out,
		AutoApprove: autoApprove,
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question and keeps asking until it gets one.
func (p *Prompter) Confirm(question string) (bool, error) {
	if p.AutoApprove {
		fmt.Fprintf(p.out, "%s [y/N]: y (auto-approved)\n", question)
		return true, nil
	}

	for {
		fmt.Fprintf(p.out, "%s [y/N]: ", question)
		answer, err := p.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		default:
			fmt.Fprintln(p.out, "Please answer y or n.")
		}
	}
}

// Ask reads a free-form line, returning def when the answer is empty.
func (p *Prompter) Ask(question, def string) (string, error) {
	if p.AutoApprove {
		return def, nil
	}

	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// AskInt reads an integer within [min, max], re-asking on anything
// else. Empty input takes the default.
func (p *Prompter) AskInt(question string, min, max, def int) (int, error) {
	if p.AutoApprove {
		return def, nil
	}

	for {
		fmt.Fprintf(p.out, "%s [%d-%d, default %d]: ", question, min, max, def)
		answer, err := p.readLine()
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return def, nil
		}
		value, err := strconv.Atoi(answer)
		if err != nil || value < min || value > max {
			fmt.Fprintf(p.out, "Please enter a number between %d and %d.\n", min, max)
			continue
		}
		return value, nil
	}
}
