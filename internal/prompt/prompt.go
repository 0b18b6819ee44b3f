// Package prompt reads answers to interactive questions from a terminal
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
)

// Prompter asks questions on out and reads answers line by line from in
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New returns a prompter over in and out
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// line reads one trimmed answer. EOF after a partial line is an answer;
// EOF on an empty line is an error so that scripts never confirm by accident.
func (p *Prompter) line() (string, error) {
	s, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", errors.Newf("no answer: %w", err).
			Category(errors.CategoryCancellation).
			Component("prompt").
			Build()
	}
	return strings.TrimSpace(s), nil
}

// String asks question and returns the answer, or def for an empty answer
func (p *Prompter) String(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	s, err := p.line()
	if err != nil {
		return "", err
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

// Int asks for a whole number, repeating the question until one is given
func (p *Prompter) Int(question string, def int) (int, error) {
	d := ""
	if def != 0 {
		d = strconv.Itoa(def)
	}
	for {
		s, err := p.String(question, d)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(s)
		if err == nil {
			return n, nil
		}
		fmt.Fprintf(p.out, "%q is not a number\n", s)
	}
}

// Confirm asks a yes/no question; empty answers return def
func (p *Prompter) Confirm(question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s (%s): ", question, hint)
	s, err := p.line()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ConfirmWord requires the exact word, e.g. "yes", to proceed
func (p *Prompter) ConfirmWord(question, word string) (bool, error) {
	fmt.Fprintf(p.out, "%s (type '%s' to continue): ", question, word)
	s, err := p.line()
	if err != nil {
		return false, err
	}
	return strings.EqualFold(s, word), nil
}
