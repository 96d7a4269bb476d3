package domain

// Zero overwrites every buffer with zeros. Plaintext keys are zeroed as soon as
// the operation that unwrapped them returns.
func Zero(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
