package exec

import "errors"

// ErrAmbiguousPlaceholders reports statement text with a bare % outside
// every recognized placeholder shape and no server-binds hint. Raised
// before anything is sent to the backend and never silenced by policy:
// guessing could substitute a bind value into literal text.
var ErrAmbiguousPlaceholders = errors.New("ambiguous % placeholder usage; pass an explicit server-binds hint")
