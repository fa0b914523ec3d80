package exec

// Policy selects how backend execution failures surface. It never affects
// source-resolution or placeholder-ambiguity errors, which are fatal under
// every policy.
type Policy int

const (
	// PolicySilent logs a failure and yields an empty result.
	PolicySilent Policy = iota
	// PolicyWarnDeprecated behaves like PolicyStrict and additionally emits
	// a one-per-call notice pointing callers at the raise-errors flag.
	PolicyWarnDeprecated
	// PolicyStrict propagates the classified backend error.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyWarnDeprecated:
		return "warn_deprecated"
	case PolicyStrict:
		return "strict"
	default:
		return "silent"
	}
}

// ResolvePolicy maps the request flags to a policy. The legacy stop-on-error
// flag wins so its deprecation notice is not lost; selection is pure and
// never inspects the statement text.
func ResolvePolicy(raiseErrors, stopOnError bool) Policy {
	if stopOnError {
		return PolicyWarnDeprecated
	}
	if raiseErrors {
		return PolicyStrict
	}
	return PolicySilent
}
