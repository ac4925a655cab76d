package engine

import "errors"

// ErrRunawayRecurrence is returned when a repeat policy fails to produce
// a future occurrence within the advance safety cap
var ErrRunawayRecurrence = errors.New("repeat policy produced no future occurrence within the safety cap")
