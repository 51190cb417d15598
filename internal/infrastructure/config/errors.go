package config

import "errors"

// ErrConfigInvalid indicates the configuration failed validation.
// Validation problems never reach the running coordinator; they are
// rejected here at load time.
var ErrConfigInvalid = errors.New("config: invalid configuration")
