package main

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

func testSpec(t *testing.T, name string) PolicySpec {
	t.Helper()
	catalog, err := newCatalog(builtinPolicies()...)
	if err != nil {
		t.Fatalf("newCatalog: %v", err)
	}
	specs, err := catalog.lookup([]string{name})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return specs[0]
}

func testSession(t *testing.T, apic *fakeAPIC) *Session {
	t.Helper()
	srv := apic.start(t)
	s, err := authenticate(context.Background(), testClient(), apic.target(srv))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return s
}

func TestReconcileRogueEndpointControl(t *testing.T) {
	apic := newFakeAPIC()
	apic.setObject("uni/infra/epCtrlP-default", "epControlP", Attrs{"adminSt": "disabled"})
	s := testSession(t, apic)
	gate := &scriptedGate{answer: true}

	outcome := reconcile(context.Background(), s, testSpec(t, "rogue-endpoint-control"), "", gate)
	if outcome.Kind != Enabled {
		t.Fatalf("outcome = %s (%v), want enabled", outcome.Kind, outcome.Err)
	}
	writes := apic.writesTo("uni/infra/epCtrlP-default")
	if len(writes) != 1 || apic.writeCount() != 1 {
		t.Fatalf("expected exactly one write, got %d", apic.writeCount())
	}
	attrs := gjson.Get(writes[0].body, "epControlP.attributes")
	if attrs.Get("adminSt").Str != "enabled" {
		t.Errorf("write adminSt = %q", attrs.Get("adminSt").Str)
	}
	if attrs.Get("status").Str != "modified" {
		t.Errorf("patch status = %q, want modified", attrs.Get("status").Str)
	}
	if attrs.Get("rogueEpDetectMult").Str != "4" {
		t.Errorf("write should carry detection settings: %s", writes[0].body)
	}
	if len(gate.confirms) != 1 {
		t.Errorf("gate asked %d times, want 1", len(gate.confirms))
	}
}

func TestReconcilePortTrackingAlreadyEnabled(t *testing.T) {
	for _, answer := range []bool{true, false} {
		apic := newFakeAPIC()
		apic.setObject("uni/infra/trackEqptFabP-default", "infraPortTrackPol", Attrs{"portTracking": "enabled"})
		s := testSession(t, apic)
		gate := &scriptedGate{answer: answer}

		outcome := reconcile(context.Background(), s, testSpec(t, "port-tracking"), "", gate)
		if outcome.Kind != AlreadySatisfied {
			t.Fatalf("outcome = %s, want already-satisfied", outcome.Kind)
		}
		if apic.writeCount() != 0 {
			t.Errorf("expected no writes, got %d", apic.writeCount())
		}
		if len(gate.confirms) != 0 {
			t.Errorf("gate must not be consulted, asked %v", gate.confirms)
		}
	}
}

func TestReconcileIdempotent(t *testing.T) {
	apic := newFakeAPIC()
	apic.setObject("uni/infra/settings", "infraSetPol", Attrs{"remoteEpLearn": "Disabled"})
	s := testSession(t, apic)
	gate := &scriptedGate{answer: true}
	spec := testSpec(t, "endpoint-learning")

	for i := 0; i < 5; i++ {
		if outcome := reconcile(context.Background(), s, spec, "", gate); outcome.Kind != AlreadySatisfied {
			t.Fatalf("run %d: outcome = %s", i, outcome.Kind)
		}
	}
	if apic.writeCount() != 0 {
		t.Errorf("expected no writes, got %d", apic.writeCount())
	}
}

func TestReconcileConvergesThenIdles(t *testing.T) {
	apic := newFakeAPIC()
	apic.setObject("uni/infra/mcpInstP-default", "mcpInstPol", Attrs{"adminSt": "disabled"})
	s := testSession(t, apic)
	gate := &scriptedGate{answer: true}
	spec := testSpec(t, "loop-protection")

	if outcome := reconcile(context.Background(), s, spec, "", gate); outcome.Kind != Enabled {
		t.Fatalf("first run = %s (%v)", outcome.Kind, outcome.Err)
	}
	if outcome := reconcile(context.Background(), s, spec, "", gate); outcome.Kind != AlreadySatisfied {
		t.Fatalf("second run = %s", outcome.Kind)
	}
	if apic.writeCount() != 1 {
		t.Errorf("expected one write over two runs, got %d", apic.writeCount())
	}
}

func TestReconcileDeclined(t *testing.T) {
	apic := newFakeAPIC()
	apic.setObject("uni/infra/epCtrlP-default", "epControlP", Attrs{"adminSt": "disabled"})
	s := testSession(t, apic)

	outcome := reconcile(context.Background(), s, testSpec(t, "rogue-endpoint-control"), "", &scriptedGate{answer: false})
	if outcome.Kind != Declined {
		t.Fatalf("outcome = %s, want declined", outcome.Kind)
	}
	if outcome.Err != nil || !strings.Contains(outcome.Object, "epCtrlP-default") {
		t.Errorf("declined outcome = %+v", outcome)
	}
	if apic.writeCount() != 0 {
		t.Errorf("declined run wrote %d times", apic.writeCount())
	}
}

func TestReconcileCreatesAbsentNamedPolicy(t *testing.T) {
	apic := newFakeAPIC()
	s := testSession(t, apic)

	outcome := reconcile(context.Background(), s, testSpec(t, "loop-protection-interface"), "mcp-on", &scriptedGate{answer: true})
	if outcome.Kind != Created {
		t.Fatalf("outcome = %s (%v), want created", outcome.Kind, outcome.Err)
	}
	writes := apic.writesTo("uni/infra/mcpIfP-mcp-on")
	if len(writes) != 1 {
		t.Fatalf("expected one write to the named policy, got %d", len(writes))
	}
	attrs := gjson.Get(writes[0].body, "mcpIfPol.attributes")
	if attrs.Get("status").Str != "created" || attrs.Get("name").Str != "mcp-on" ||
		attrs.Get("dn").Str != "uni/infra/mcpIfP-mcp-on" || attrs.Get("adminSt").Str != "enabled" {
		t.Errorf("create payload = %s", writes[0].body)
	}
}

func TestReconcileWriteFailure(t *testing.T) {
	apic := newFakeAPIC()
	apic.setObject("uni/infra/trackEqptFabP-default", "infraPortTrackPol", Attrs{"adminSt": "off"})
	apic.failWrites["uni/infra/trackEqptFabP-default"] = http.StatusBadRequest
	s := testSession(t, apic)

	outcome := reconcile(context.Background(), s, testSpec(t, "port-tracking"), "", &scriptedGate{answer: true})
	if outcome.Kind != Failed {
		t.Fatalf("outcome = %s, want failed", outcome.Kind)
	}
	if !errors.Is(outcome.Err, ErrWrite) {
		t.Errorf("expected ErrWrite, got %v", outcome.Err)
	}
	if httpStatus(outcome.Err) != http.StatusBadRequest {
		t.Errorf("raw status should be kept: %v", outcome.Err)
	}
	if !strings.Contains(outcome.Reason(), "configured failure") {
		t.Errorf("raw body should be kept: %s", outcome.Reason())
	}
	if apic.writeCount() != 1 {
		t.Errorf("failed write must not be retried, got %d writes", apic.writeCount())
	}
}

func TestReconcileReauthenticatesOnce(t *testing.T) {
	apic := newFakeAPIC()
	apic.setObject("uni/infra/epCtrlP-default", "epControlP", Attrs{"adminSt": "disabled"})
	s := testSession(t, apic)
	apic.expire(1)

	outcome := reconcile(context.Background(), s, testSpec(t, "rogue-endpoint-control"), "", &scriptedGate{answer: true})
	if outcome.Kind != Enabled {
		t.Fatalf("outcome = %s (%v), want enabled", outcome.Kind, outcome.Err)
	}
	if apic.loginCount() != 2 {
		t.Errorf("expected one re-login, got %d logins", apic.loginCount())
	}
	if apic.writeCount() != 1 {
		t.Errorf("expected exactly one write, got %d", apic.writeCount())
	}
}

func TestReconcileReadFailure(t *testing.T) {
	apic := newFakeAPIC()
	s := testSession(t, apic)
	apic.expire(2)
	gate := &scriptedGate{answer: true}

	outcome := reconcile(context.Background(), s, testSpec(t, "rogue-endpoint-control"), "", gate)
	if outcome.Kind != Failed || !errors.Is(outcome.Err, ErrRead) {
		t.Fatalf("outcome = %s (%v), want failed read", outcome.Kind, outcome.Err)
	}
	if apic.writeCount() != 0 || len(gate.confirms) != 0 {
		t.Error("a failed read must neither ask nor write")
	}
}

func TestReconcileUnexpectedClass(t *testing.T) {
	apic := newFakeAPIC()
	apic.setObject("uni/infra/settings", "somethingElse", Attrs{"x": "y"})
	s := testSession(t, apic)

	outcome := reconcile(context.Background(), s, testSpec(t, "endpoint-learning"), "", &scriptedGate{answer: true})
	if outcome.Kind != Failed || !errors.Is(outcome.Err, ErrDecode) {
		t.Fatalf("outcome = %s (%v), want decode failure", outcome.Kind, outcome.Err)
	}
}
