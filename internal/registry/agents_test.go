package registry

import (
	"testing"
	"time"
)

func TestAgentRegistry_FindByCapability_CaseInsensitiveExcludesUnavailableAndSelf(t *testing.T) {
	r := NewAgentRegistry()
	r.Upsert(AgentRegistration{
		AgentID: "email-agent", Name: "Email Agent", IsAvailable: true,
		Capabilities: []Capability{{Name: "Email-Drafting"}},
	})
	r.Upsert(AgentRegistration{
		AgentID: "offline-agent", Name: "Offline", IsAvailable: false,
		Capabilities: []Capability{{Name: "email-drafting"}},
	})
	r.Upsert(AgentRegistration{
		AgentID: "cos", Name: "Chief of Staff", IsAvailable: true,
		Capabilities: []Capability{{Name: "email-drafting"}},
	})

	matches := r.FindByCapability("email-drafting", "cos")
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if matches[0].AgentID != "email-agent" {
		t.Errorf("matches[0].AgentID = %q, want email-agent", matches[0].AgentID)
	}
}

func TestAgentRegistry_SetAvailable_UnknownAgentIsNoOp(t *testing.T) {
	r := NewAgentRegistry()
	r.SetAvailable("nope", false) // must not panic

	if _, ok := r.Get("nope"); ok {
		t.Error("expected no registration for unknown agent")
	}
}

func TestAgentRegistry_EnumerateAll_Dedupes(t *testing.T) {
	r := NewAgentRegistry()
	r.Upsert(AgentRegistration{AgentID: "a", IsAvailable: true, Capabilities: []Capability{{Name: "x"}, {Name: "y"}}})
	r.Upsert(AgentRegistration{AgentID: "b", IsAvailable: true, Capabilities: []Capability{{Name: "y"}, {Name: "z"}}})

	names := r.EnumerateAll()
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if len(seen) != 3 || !seen["x"] || !seen["y"] || !seen["z"] {
		t.Errorf("EnumerateAll() = %v, want {x,y,z}", names)
	}
}

func TestAgentRegistry_RegistrationsPersistAcrossAvailabilityFlip(t *testing.T) {
	r := NewAgentRegistry()
	r.Upsert(AgentRegistration{AgentID: "cos", IsAvailable: true, RegisteredAt: time.Now()})
	r.SetAvailable("cos", false)

	reg, ok := r.Get("cos")
	if !ok {
		t.Fatal("expected registration to persist after SetAvailable(false)")
	}
	if reg.IsAvailable {
		t.Error("expected IsAvailable = false")
	}
}
