package kernel

import "errors"

var (
	// ErrFileRead reports a missing or unreadable input file.
	ErrFileRead = errors.New("file read error")

	// ErrFormat reports a file whose content the parser rejected.
	ErrFormat = errors.New("format error")
)
