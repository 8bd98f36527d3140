package plan

import (
	"reflect"
	"testing"

	"verso/internal/manifest"
	"verso/internal/pkggraph"
	"verso/internal/version"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input    string
		expected Strategy
		wantErr  bool
	}{
		{"independent", StrategyIndependent, false},
		{"unified", StrategyUnified, false},
		{"Unified", StrategyUnified, false},
		{"", StrategyIndependent, false},
		{" independent ", StrategyIndependent, false},
		{"locked", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStrategy(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStrategy(%q): %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseStrategy(%q) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

func TestPlan_AddAndBumped(t *testing.T) {
	p := New(StrategyIndependent)
	if p.ID == "" || p.ComputedAt == 0 {
		t.Error("New must stamp id and timestamp")
	}

	p.Add(Change{PackageID: "a", OldVersion: "1.0.0", NewVersion: "1.1.0", Bump: version.BumpMinor, WillBump: true})
	p.Add(Change{PackageID: "b", OldVersion: "2.0.0", NewVersion: "2.0.0"})

	if p.Changes[0].BumpName != "minor" {
		t.Errorf("BumpName = %s, Add must sync it", p.Changes[0].BumpName)
	}
	bumped := p.Bumped()
	if len(bumped) != 1 || bumped[0].PackageID != "a" {
		t.Errorf("Bumped = %v", bumped)
	}
}

func TestPlan_Sort(t *testing.T) {
	g, err := pkggraph.Build([]*manifest.Package{
		{ID: "core", Version: "1.0.0"},
		{ID: "utils", Version: "1.0.0", Internal: []string{"core"}},
		{ID: "app", Version: "1.0.0", Internal: []string{"utils"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	p := New(StrategyIndependent)
	p.Add(Change{PackageID: "app"})
	p.Add(Change{PackageID: "core"})
	p.Add(Change{PackageID: "utils"})
	p.Sort(g)

	var order []string
	for _, c := range p.Changes {
		order = append(order, c.PackageID)
	}
	if !reflect.DeepEqual(order, []string{"core", "utils", "app"}) {
		t.Errorf("order = %v, dependencies must come first", order)
	}
}

func TestPlan_Sort_OffGraphTail(t *testing.T) {
	g, err := pkggraph.Build([]*manifest.Package{{ID: "core", Version: "1.0.0"}})
	if err != nil {
		t.Fatal(err)
	}

	p := New(StrategyIndependent)
	p.Add(Change{PackageID: "zzz-external"})
	p.Add(Change{PackageID: "core"})
	p.Sort(g)

	if p.Changes[0].PackageID != "core" || p.Changes[1].PackageID != "zzz-external" {
		t.Errorf("order = %v, off-graph packages belong at the tail", p.Changes)
	}
}

func TestPlan_Tags(t *testing.T) {
	t.Run("independent", func(t *testing.T) {
		p := New(StrategyIndependent)
		p.Add(Change{PackageID: "@acme/core", NewVersion: "1.3.0", WillBump: true})
		p.Add(Change{PackageID: "@acme/cli", NewVersion: "0.9.0"})
		p.Add(Change{PackageID: "@acme/utils", NewVersion: "2.0.2", WillBump: true})

		got := p.Tags("{name}@{version}", "v{version}")
		expected := []string{"@acme/core@1.3.0", "@acme/utils@2.0.2"}
		if !reflect.DeepEqual(got, expected) {
			t.Errorf("Tags = %v, expected %v", got, expected)
		}
	})

	t.Run("unified single tag", func(t *testing.T) {
		p := New(StrategyUnified)
		p.Add(Change{PackageID: "a", NewVersion: "2.0.0", WillBump: true})
		p.Add(Change{PackageID: "b", NewVersion: "2.0.0", WillBump: true})

		got := p.Tags("{name}@{version}", "v{version}")
		if !reflect.DeepEqual(got, []string{"v2.0.0"}) {
			t.Errorf("Tags = %v, expected single v2.0.0", got)
		}
	})

	t.Run("nothing bumped", func(t *testing.T) {
		p := New(StrategyUnified)
		p.Add(Change{PackageID: "a", NewVersion: "1.0.0"})
		if got := p.Tags("{name}@{version}", "v{version}"); got != nil {
			t.Errorf("Tags = %v, expected nil", got)
		}
	})
}
