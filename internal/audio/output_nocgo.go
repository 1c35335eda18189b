//go:build nocgo

package audio

import "errors"

// Output is unavailable in nocgo builds.
type Output struct {
	*Timeline
}

// NewOutput always fails in nocgo builds; use NewNullOutput instead.
func NewOutput(config OutputConfig) (*Output, error) {
	return nil, errors.New("audio not available in nocgo build")
}

// Close is a no-op in nocgo builds.
func (o *Output) Close() error { return nil }
