package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestChallengeRefCanonical(t *testing.T) {
	tests := []struct {
		input string
		key   string
	}{
		{`"daily-walk"`, "daily-walk"},
		{`"  hydration "`, "hydration"},
		{`7`, "7"},
	}

	for _, tt := range tests {
		var ref ChallengeRef
		if err := json.Unmarshal([]byte(tt.input), &ref); err != nil {
			t.Errorf("Unmarshal(%s) error: %v", tt.input, err)
			continue
		}
		if ref.IsEphemeral() {
			t.Errorf("Unmarshal(%s) should be canonical", tt.input)
		}
		if ref.Key != tt.key {
			t.Errorf("Unmarshal(%s).Key = %q, want %q", tt.input, ref.Key, tt.key)
		}
	}
}

func TestChallengeRefEphemeral(t *testing.T) {
	input := `{"key":"stretch","title":"Stretch","points":15,"category":"physical","requiredDays":3,"cooldownHours":12}`

	var ref ChallengeRef
	if err := json.Unmarshal([]byte(input), &ref); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ref.IsEphemeral() {
		t.Fatal("expected ephemeral ref")
	}
	d := ref.Definition
	if ref.Key != "stretch" || d.Key != "stretch" {
		t.Errorf("key = %q/%q, want stretch", ref.Key, d.Key)
	}
	if d.Points != 15 || d.RequiredDays != 3 || d.CooldownHours != 12 {
		t.Errorf("got points=%d days=%d cooldown=%d", d.Points, d.RequiredDays, d.CooldownHours)
	}
	if d.Category != CategoryPhysical {
		t.Errorf("category = %q, want physical", d.Category)
	}
}

func TestChallengeRefLegacyFields(t *testing.T) {
	input := `{"id":4,"title":"No Sugar Day","xp":40,"badgeName":"mental","totalDays":2}`

	var ref ChallengeRef
	if err := json.Unmarshal([]byte(input), &ref); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d := ref.Definition
	if d == nil {
		t.Fatal("expected ephemeral ref")
	}
	if d.Key != "4" {
		t.Errorf("key = %q, want 4", d.Key)
	}
	if d.Points != 40 {
		t.Errorf("points = %d, want 40", d.Points)
	}
	if d.Category != CategoryMental {
		t.Errorf("category = %q, want mental", d.Category)
	}
	if d.RequiredDays != 2 {
		t.Errorf("required days = %d, want 2", d.RequiredDays)
	}
	if d.CooldownHours != 0 {
		t.Errorf("cooldown = %d, want 0", d.CooldownHours)
	}
}

func TestChallengeRefEmpty(t *testing.T) {
	for _, input := range []string{`""`, `null`, `{"title":"no key"}`} {
		var ref ChallengeRef
		err := json.Unmarshal([]byte(input), &ref)
		if !errors.Is(err, ErrEmptyChallengeRef) {
			t.Errorf("Unmarshal(%s) error = %v, want ErrEmptyChallengeRef", input, err)
		}
	}
}

func TestChallengeRefMarshal(t *testing.T) {
	data, err := json.Marshal(Canonical("daily-walk"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"daily-walk"` {
		t.Errorf("canonical = %s", data)
	}

	data, err = json.Marshal(Ephemeral(ChallengeDefinition{Key: "x", Points: 5, RequiredDays: 1}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ChallengeRef
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.IsEphemeral() || back.Definition.Points != 5 {
		t.Errorf("ephemeral did not survive encoding: %s", data)
	}
}

func TestChallengeDefinitionValidate(t *testing.T) {
	tests := []struct {
		name  string
		def   ChallengeDefinition
		valid bool
	}{
		{"ok", ChallengeDefinition{Key: "a", Points: 0, RequiredDays: 1, CooldownHours: 0}, true},
		{"negative points", ChallengeDefinition{Key: "a", Points: -1, RequiredDays: 1}, false},
		{"zero days", ChallengeDefinition{Key: "a", Points: 1, RequiredDays: 0}, false},
		{"negative cooldown", ChallengeDefinition{Key: "a", Points: 1, RequiredDays: 1, CooldownHours: -2}, false},
		{"missing key", ChallengeDefinition{Points: 1, RequiredDays: 1}, false},
	}

	for _, tt := range tests {
		err := tt.def.Validate()
		if (err == nil) != tt.valid {
			t.Errorf("%s: Validate() = %v, valid=%v", tt.name, err, tt.valid)
		}
	}
}

func TestLatestCompletion(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	p := RewardProfile{
		Completions: []CompletionRecord{
			{ChallengeKey: "a", CompletedAt: base},
			{ChallengeKey: "b", CompletedAt: base.Add(3 * time.Hour)},
			{ChallengeKey: "a", CompletedAt: base.Add(48 * time.Hour)},
		},
	}

	got := p.LatestCompletion("a")
	if got == nil || !got.CompletedAt.Equal(base.Add(48*time.Hour)) {
		t.Errorf("LatestCompletion(a) = %v", got)
	}
	if p.LatestCompletion("c") != nil {
		t.Error("expected nil for unknown key")
	}
}
