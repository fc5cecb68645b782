package hsm

import "errors"

// ErrKeyGeneration reports a failed key pair generation. Fatal for the owning
// entity: without a key it can neither sign nor request certificates.
var ErrKeyGeneration = errors.New("key generation failed")

// ErrPoolExhausted reports that no valid certificate remains in the pool.
// The entity can no longer authenticate and must stop participating.
var ErrPoolExhausted = errors.New("certificate pool exhausted")
