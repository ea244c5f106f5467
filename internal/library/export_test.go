package library

// SetMoveNoReplace replaces the move used by Reconcile and returns a func
// restoring the original.
func SetMoveNoReplace(move func(src, dst string) error) func() {
	prev := moveNoReplace
	moveNoReplace = move
	return func() { moveNoReplace = prev }
}
