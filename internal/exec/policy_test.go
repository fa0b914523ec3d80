package exec

import "testing"

func TestResolvePolicy(t *testing.T) {
	tests := []struct {
		name        string
		raiseErrors bool
		stopOnError bool
		want        Policy
	}{
		{name: "defaults to silent", want: PolicySilent},
		{name: "raise errors is strict", raiseErrors: true, want: PolicyStrict},
		{name: "legacy flag warns", stopOnError: true, want: PolicyWarnDeprecated},
		{name: "legacy flag wins over raise errors", raiseErrors: true, stopOnError: true, want: PolicyWarnDeprecated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolvePolicy(tt.raiseErrors, tt.stopOnError); got != tt.want {
				t.Fatalf("ResolvePolicy(%v, %v) = %s, want %s", tt.raiseErrors, tt.stopOnError, got, tt.want)
			}
		})
	}
}

func TestPolicyString(t *testing.T) {
	if PolicySilent.String() != "silent" {
		t.Fatalf("PolicySilent.String() = %q", PolicySilent.String())
	}
	if PolicyWarnDeprecated.String() != "warn_deprecated" {
		t.Fatalf("PolicyWarnDeprecated.String() = %q", PolicyWarnDeprecated.String())
	}
	if PolicyStrict.String() != "strict" {
		t.Fatalf("PolicyStrict.String() = %q", PolicyStrict.String())
	}
}
