package profile

import "testing"

func TestDeriveNameParts(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		want        NameParts
	}{
		{name: "first and last", displayName: "Jane Doe", want: NameParts{First: "Jane", LastInitial: "D"}},
		{name: "single name", displayName: "Jane", want: NameParts{First: "Jane", LastInitial: "J"}},
		{name: "empty", displayName: "", want: NameParts{First: "User", LastInitial: "U"}},
		{name: "whitespace only", displayName: "   ", want: NameParts{First: "User", LastInitial: "U"}},
		{name: "three names uses last for initial", displayName: "Jane Q Public", want: NameParts{First: "Jane", LastInitial: "P"}},
		{name: "lowercase last name", displayName: "jane doe", want: NameParts{First: "jane", LastInitial: "D"}},
		{name: "extra whitespace", displayName: "  Jane   Doe  ", want: NameParts{First: "Jane", LastInitial: "D"}},
		{name: "non-ascii name", displayName: "太郎 山田", want: NameParts{First: "太郎", LastInitial: "山"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveNameParts(tt.displayName); got != tt.want {
				t.Errorf("DeriveNameParts(%q) = %+v, want %+v", tt.displayName, got, tt.want)
			}
		})
	}
}
