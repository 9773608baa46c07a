package spendlogs

import "testing"

func TestIsMasterKey(t *testing.T) {
	const master = "sk-1234"

	tests := []struct {
		name      string
		presented string
		masterKey string
		want      bool
	}{
		{"no master key configured", "sk-1234", "", false},
		{"raw match", master, master, true},
		{"hashed match", HashToken(master), master, true},
		{"mismatch", "sk-other", master, false},
		{"hash of wrong key", HashToken("sk-other"), master, false},
		{"empty presented", "", master, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMasterKey(tt.presented, tt.masterKey); got != tt.want {
				t.Errorf("IsMasterKey(%q, %q) = %v, want %v", tt.presented, tt.masterKey, got, tt.want)
			}
		})
	}
}

func TestHashToken(t *testing.T) {
	// sha256 hex is 64 chars and stable.
	h1 := HashToken("sk-1234")
	h2 := HashToken("sk-1234")
	if h1 != h2 {
		t.Errorf("HashToken not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("HashToken length = %d, want 64", len(h1))
	}
	if h1 == HashToken("sk-1235") {
		t.Error("distinct keys hash identically")
	}
}

func TestNormalizeAPIKey(t *testing.T) {
	const master = "sk-master"

	tests := []struct {
		name    string
		apiKey  string
		disable bool
		want    string
	}{
		{"raw key hashed", "sk-user", false, HashToken("sk-user")},
		{"hashed key passes through", HashToken("sk-user"), false, HashToken("sk-user")},
		{"master key hashed when storage allowed", master, false, HashToken(master)},
		{"master key aliased when storage disabled", master, true, MasterKeyAlias},
		{"master hash aliased when storage disabled", HashToken(master), true, MasterKeyAlias},
		{"empty key", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeAPIKey(tt.apiKey, master, tt.disable); got != tt.want {
				t.Errorf("normalizeAPIKey(%q) = %q, want %q", tt.apiKey, got, tt.want)
			}
		})
	}
}
