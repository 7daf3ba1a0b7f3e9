package config

import "errors"

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrUnsupportedDriver is returned by OpenStore for an unknown database driver.
var ErrUnsupportedDriver = errors.New("unsupported database driver")
