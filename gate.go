package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Gate supplies the decisions the pipeline cannot make on its own.
type Gate interface {
	// Confirm asks a yes/no question.
	Confirm(question string) bool
	// SelectGroups shows a numbered list and returns the 1-based numbers
	// picked. Numbers need not be valid; the caller filters them.
	SelectGroups(prompt string, choices []string) []int
}

func input(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprintf(w, "%s ", prompt)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.Trim(line, "\r\n"), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// parsePicks reads comma separated numbers, skipping anything that is not
// one. "all" and "*" pick every one of n choices.
func parsePicks(text string, choices []string) []int {
	var picks []int
	for _, field := range strings.Split(text, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.EqualFold(field, "all") || field == "*" {
			picks = picks[:0]
			for i := range choices {
				picks = append(picks, i+1)
			}
			return picks
		}
		if n, err := strconv.Atoi(field); err == nil {
			picks = append(picks, n)
			continue
		}
		for i, choice := range choices {
			if strings.EqualFold(choice, field) {
				picks = append(picks, i+1)
				break
			}
		}
	}
	return picks
}

// terminalGate prompts on out and reads answers from in.
type terminalGate struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalGate(in io.Reader, out io.Writer) *terminalGate {
	return &terminalGate{in: bufio.NewReader(in), out: out}
}

// ask reads one free-form answer.
func (g *terminalGate) ask(prompt string) (string, error) {
	answer, err := input(g.in, g.out, prompt)
	return strings.TrimSpace(answer), err
}

func (g *terminalGate) Confirm(question string) bool {
	answer, err := input(g.in, g.out, question+" (y/n):")
	if err != nil {
		return false
	}
	return isYes(answer)
}

func (g *terminalGate) SelectGroups(prompt string, choices []string) []int {
	fmt.Fprintln(g.out, prompt)
	for i, choice := range choices {
		fmt.Fprintf(g.out, "%d. %s\n", i+1, choice)
	}
	answer, err := input(g.in, g.out, "Enter the numbers of the groups (comma separated):")
	if err != nil {
		return nil
	}
	return parsePicks(answer, choices)
}

// fixedGate answers without asking, for unattended runs.
type fixedGate struct {
	assume    bool
	selection string
}

func (g fixedGate) Confirm(string) bool {
	return g.assume
}

func (g fixedGate) SelectGroups(_ string, choices []string) []int {
	return parsePicks(g.selection, choices)
}

// presetGate asks for confirmations but takes a fixed group selection.
type presetGate struct {
	Gate
	selection string
}

func (g presetGate) SelectGroups(_ string, choices []string) []int {
	return parsePicks(g.selection, choices)
}

// serialGate lets several workers share one gate.
type serialGate struct {
	mu   sync.Mutex
	gate Gate
}

func (g *serialGate) Confirm(question string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate.Confirm(question)
}

func (g *serialGate) SelectGroups(prompt string, choices []string) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate.SelectGroups(prompt, choices)
}

// hold runs fn with exclusive use of the underlying gate, so several
// questions reach the operator without another worker's in between.
func (g *serialGate) hold(fn func(Gate)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.gate)
}
