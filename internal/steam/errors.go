package steam

import "fmt"

// InputError reports a seed target that cannot be turned into a SteamID64.
// The run cannot start without one.
type InputError struct {
	Target string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("cannot resolve target %q: %s", e.Target, e.Reason)
}
