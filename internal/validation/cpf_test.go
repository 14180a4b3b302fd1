package validation

import "testing"

func TestIsValidCPF(t *testing.T) {
	tests := []struct {
		name string
		cpf  string
		want bool
	}{
		{name: "valid", cpf: "15350946056", want: true},
		{name: "valid other", cpf: "12345678901", want: true},
		{name: "empty", cpf: "", want: false},
		{name: "too short", cpf: "1234567890", want: false},
		{name: "too long", cpf: "123456789012", want: false},
		{name: "non-digit", cpf: "1235094605a", want: false},
		{name: "formatted", cpf: "153.509.460", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCPF(tt.cpf); got != tt.want {
				t.Fatalf("IsValidCPF(%q) = %v, want %v", tt.cpf, got, tt.want)
			}
		})
	}
}
