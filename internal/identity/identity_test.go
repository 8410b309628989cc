package identity

import "testing"

func TestEngineRole(t *testing.T) {
	tests := []struct {
		name     string
		hostRole string
		want     string
	}{
		{"admin maps to admin", "admin", RoleAdmin},
		{"user maps to business", "user", RoleBusiness},
		{"pending maps to business", "pending", RoleBusiness},

		// Unknown roles never fail, they default to business
		{"unknown role", "superuser", RoleBusiness},
		{"empty role", "", RoleBusiness},
		{"case sensitive", "Admin", RoleBusiness},
		{"garbage role", "!!!", RoleBusiness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EngineRole(tt.hostRole); got != tt.want {
				t.Errorf("EngineRole(%q) = %q, want %q", tt.hostRole, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		caller *Caller
		want   Resolved
	}{
		{
			name:   "nil caller gets anonymous defaults",
			caller: nil,
			want:   Resolved{Email: "anonymous", EngineRole: RoleBusiness, UserID: "anonymous"},
		},
		{
			name:   "admin caller",
			caller: &Caller{Email: "alice@corp.example", Role: "admin"},
			want:   Resolved{Email: "alice@corp.example", EngineRole: RoleAdmin, UserID: "alice@corp.example"},
		},
		{
			name:   "regular user",
			caller: &Caller{Email: "bob@corp.example", Name: "Bob", Role: "user"},
			want:   Resolved{Email: "bob@corp.example", EngineRole: RoleBusiness, UserID: "bob@corp.example"},
		},
		{
			name:   "empty fields fall back per-field",
			caller: &Caller{},
			want:   Resolved{Email: "anonymous", EngineRole: RoleBusiness, UserID: "anonymous"},
		},
		{
			name:   "role present without email",
			caller: &Caller{Role: "admin"},
			want:   Resolved{Email: "anonymous", EngineRole: RoleAdmin, UserID: "anonymous"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.caller); got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
