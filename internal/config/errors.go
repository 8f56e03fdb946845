package config

import "errors"

// Sentinel error kinds for this package. These allow errors.Is from callers.
var (
	ErrLoadConfig = errors.New("load config failed")
)
