package voices

import "testing"

func TestFind(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
		wantErr  bool
	}{
		{"exact id", "en-US-AriaNeural", "en-US-AriaNeural", false},
		{"exact name", "Aria", "en-US-AriaNeural", false},
		{"case insensitive", "aria", "en-US-AriaNeural", false},
		{"fuzzy id fragment", "sonia", "en-GB-SoniaNeural", false},
		{"empty falls back to default", "", Default, false},
		{"gibberish", "zzzzqqq", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Find(tt.query)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Find(%q) = %v, want error", tt.query, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("Find(%q): %v", tt.query, err)
			}
			if v.ID != tt.expected {
				t.Errorf("Find(%q).ID = %q, want %q", tt.query, v.ID, tt.expected)
			}
		})
	}
}

func TestDefaultIsInCatalog(t *testing.T) {
	if _, err := Find(Default); err != nil {
		t.Errorf("default voice %q not in catalog: %v", Default, err)
	}
}

func TestAllIsSortedCopy(t *testing.T) {
	all := All()
	if len(all) == 0 {
		t.Fatal("All() returned an empty catalog")
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("All() not sorted at %d: %q >= %q", i, all[i-1].ID, all[i].ID)
		}
	}

	all[0].ID = "mutated"
	if fresh := All(); fresh[0].ID == "mutated" {
		t.Error("All() exposes internal catalog storage")
	}
}
