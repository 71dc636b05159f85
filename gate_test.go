package main

import (
	"bytes"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParsePicks(t *testing.T) {
	choices := []string{"leaf-101", "leaf-102", "leaf-103"}
	tests := []struct {
		in   string
		want []int
	}{
		{"1,3", []int{1, 3}},
		{" 2 , 1 ", []int{2, 1}},
		{"1,x,,7", []int{1, 7}},
		{"LEAF-102,3", []int{2, 3}},
		{"all", []int{1, 2, 3}},
		{"1,*", []int{1, 2, 3}},
		{"", nil},
		{"none", nil},
	}
	for _, tt := range tests {
		if got := parsePicks(tt.in, choices); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parsePicks(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTerminalGateConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"Yes\r\n", true},
		{"n\n", false},
		{"maybe\n", false},
		{"y", true},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		gate := newTerminalGate(strings.NewReader(tt.in), &out)
		if got := gate.Confirm("Enable it?"); got != tt.want {
			t.Errorf("Confirm with input %q = %v, want %v", tt.in, got, tt.want)
		}
		if !strings.Contains(out.String(), "Enable it? (y/n):") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestTerminalGateSelectGroups(t *testing.T) {
	var out bytes.Buffer
	gate := newTerminalGate(strings.NewReader("2, 9\ny\n"), &out)

	picks := gate.SelectGroups("Available groups:", []string{"a", "b"})
	if !reflect.DeepEqual(picks, []int{2, 9}) {
		t.Errorf("picks = %v", picks)
	}
	for _, line := range []string{"Available groups:", "1. a", "2. b", "comma separated"} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("output missing %q:\n%s", line, out.String())
		}
	}
	if !gate.Confirm("Continue?") {
		t.Error("gate should keep reading from the same input")
	}
}

func TestTerminalGateAsk(t *testing.T) {
	gate := newTerminalGate(strings.NewReader("  creds.csv \n"), &bytes.Buffer{})
	answer, err := gate.ask("Credentials file:")
	if err != nil || answer != "creds.csv" {
		t.Errorf("ask = %q, %v", answer, err)
	}
	if _, err := gate.ask("again:"); err == nil {
		t.Error("ask on exhausted input should fail")
	}
}

func TestFixedGates(t *testing.T) {
	choices := []string{"a", "b", "c"}
	yes := fixedGate{assume: true, selection: "all"}
	if !yes.Confirm("?") || !reflect.DeepEqual(yes.SelectGroups("", choices), []int{1, 2, 3}) {
		t.Error("fixedGate yes should confirm and pick all")
	}
	no := fixedGate{}
	if no.Confirm("?") || no.SelectGroups("", choices) != nil {
		t.Error("fixedGate no should decline and pick nothing")
	}

	inner := &scriptedGate{answer: true, picks: []int{1}}
	preset := presetGate{Gate: inner, selection: "c"}
	if !preset.Confirm("?") || len(inner.confirms) != 1 {
		t.Error("presetGate should delegate confirmations")
	}
	if got := preset.SelectGroups("", choices); !reflect.DeepEqual(got, []int{3}) || inner.selects != 0 {
		t.Errorf("presetGate selection = %v", got)
	}
}

func TestSerialGate(t *testing.T) {
	inner := &scriptedGate{answer: true}
	gate := &serialGate{gate: inner}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Confirm("?")
			gate.SelectGroups("", nil)
		}()
	}
	wg.Wait()
	if len(inner.confirms) != 20 || inner.selects != 20 {
		t.Errorf("serialGate lost calls: %d confirms, %d selects", len(inner.confirms), inner.selects)
	}
}

func TestSerialGateHold(t *testing.T) {
	inner := &scriptedGate{answer: true}
	gate := &serialGate{gate: inner}
	done := make(chan struct{})
	gate.hold(func(g Gate) {
		g.SelectGroups("select", nil)
		go func() {
			defer close(done)
			gate.Confirm("other worker")
		}()
		time.Sleep(20 * time.Millisecond)
		g.Confirm("confirm")
	})
	<-done
	want := []string{"select", "confirm", "other worker"}
	if !reflect.DeepEqual(inner.calls, want) {
		t.Errorf("calls = %v, want %v", inner.calls, want)
	}
}
