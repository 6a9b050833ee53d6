package teams

import "testing"

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a@x.com", want: "a@x.com"},
		{in: "  Alice@Example.COM ", want: "alice@example.com"},
		{in: "bob@bücher.de", want: "bob@xn--bcher-kva.de"},
		{in: "", wantErr: true},
		{in: "not-an-email", wantErr: true},
		{in: "Ann <ann@x.com>", wantErr: true},
		{in: "a@localhost", wantErr: true},
		{in: "a@@x.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeEmail(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeEmail(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSameEmail(t *testing.T) {
	if !sameEmail("A@X.com", "a@x.COM") {
		t.Error("case-insensitive match failed")
	}
	if sameEmail("a@x.com", "b@x.com") {
		t.Error("different addresses matched")
	}
	if sameEmail("", "") {
		t.Error("empty addresses matched")
	}
}
