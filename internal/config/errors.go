package config

import "errors"

// ErrInvalidConfig indicates the configuration is syntactically or
// semantically invalid. Callers should use errors.Is.
var ErrInvalidConfig = errors.New("config: invalid configuration")
