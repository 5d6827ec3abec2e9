package audit

import "testing"

func TestTamperDetection(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:a", map[string]interface{}{"n": 1})
	trail.Log(EventAttestationCreated, "agent:b", map[string]interface{}{"n": 2})
	trail.Log(EventAttestationVerified, "agent:c", map[string]interface{}{"n": 3})

	if ok, idx := trail.VerifyIntegrity(); !ok || idx != -1 {
		t.Fatalf("expected pristine trail to verify, got ok=%v idx=%v", ok, idx)
	}

	trail.entries[1].Details = map[string]interface{}{"n": 999}

	ok, idx := trail.VerifyIntegrity()
	if ok || idx != 1 {
		t.Fatalf("expected tamper detected at index 1, got ok=%v idx=%v", ok, idx)
	}
}

func TestQueryFiltersAndOrdersChronologically(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:a", nil)
	trail.Log(EventAttestationCreated, "agent:a", nil)
	trail.Log(EventAttestationCreated, "agent:b", nil)

	results := trail.Query("agent:a", "", nil, nil, 0)
	if len(results) != 2 {
		t.Fatalf("expected 2 entries for agent:a, got %d", len(results))
	}
	if results[0].Sequence > results[1].Sequence {
		t.Fatal("expected results in chronological (ascending sequence) order")
	}
}

func TestQueryRespectsLimit(t *testing.T) {
	trail := New()
	for i := 0; i < 5; i++ {
		trail.Log(EventAgentRegistered, "agent:a", nil)
	}
	results := trail.Query("", "", nil, nil, 2)
	if len(results) != 2 {
		t.Fatalf("expected limit=2 to cap results, got %d", len(results))
	}
}

func TestJSONRoundTripPreservesIntegrityAndSequence(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:a", nil)
	trail.Log(EventKeyRotated, "agent:a", map[string]interface{}{"old": "x", "new": "y"})

	data, err := trail.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	restored, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if ok, _ := restored.VerifyIntegrity(); !ok {
		t.Fatal("restored trail should verify")
	}
	if restored.Size() != 2 {
		t.Fatalf("expected 2 entries restored, got %d", restored.Size())
	}
}

func TestFromJSONRejectsCorruptedTrail(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:a", nil)
	trail.Log(EventAgentRegistered, "agent:b", nil)
	data, _ := trail.ExportJSON()

	// Change a field of the second entry to break its hash without
	// breaking JSON structure: swap the agent id.
	corrupted := []byte(replaceFirst(string(data), `"agent:b"`, `"agent:z"`))

	if _, err := FromJSON(corrupted); err == nil {
		t.Fatal("expected FromJSON to reject a corrupted trail")
	}
}

func replaceFirst(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestSummary(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:a", nil)
	trail.Log(EventAgentRegistered, "agent:b", nil)
	trail.Log(EventAttestationCreated, "agent:a", nil)

	s := trail.Summary()
	if s.TotalEntries != 3 {
		t.Fatalf("expected 3 total entries, got %d", s.TotalEntries)
	}
	if s.UniqueAgents != 2 {
		t.Fatalf("expected 2 unique agents, got %d", s.UniqueAgents)
	}
	if !s.IntegrityVerified {
		t.Fatal("expected IntegrityVerified true for a pristine trail")
	}
	if s.EventCounts[string(EventAgentRegistered)] != 2 {
		t.Fatalf("expected event_counts[agent.registered] == 2, got %d", s.EventCounts[string(EventAgentRegistered)])
	}
}
