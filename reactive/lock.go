package reactive

// Lock engages the read-only guard: writes through read-only proxies are
// dropped with a warning. Systems start locked.
func (rs *ReactiveSystem) Lock() {
	rs.locked = true
}

// Unlock lets writes through read-only proxies reach the raw target, for
// framework code that mutates nominally read-only state.
func (rs *ReactiveSystem) Unlock() {
	rs.locked = false
}

func (rs *ReactiveSystem) Locked() bool {
	return rs.locked
}
