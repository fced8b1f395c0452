// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"errors"
)

// Pipe is a connected pair of non-blocking descriptors. Bytes written to
// WriteEnd are read from ReadEnd, in order. The ends are closed
// independently; closing WriteEnd makes ReadEnd readable, reporting EOF
// once drained.
type Pipe struct {
	ReadEnd  *Descriptor
	WriteEnd *Descriptor
}

// CreatePipe creates a pipe with both ends non-blocking and close-on-exec.
// Failures due to descriptor limits match [ErrResourceExhausted].
func CreatePipe() (*Pipe, error) {
	return CreatePipeNamed(`pipe`)
}

// CreatePipeNamed is [CreatePipe], naming the ends prefix+".r" and
// prefix+".w", for logging.
func CreatePipeNamed(prefix string) (*Pipe, error) {
	r, w, err := createPipe()
	if err != nil {
		return nil, err
	}
	return &Pipe{
		ReadEnd:  newDescriptor(r, prefix+`.r`),
		WriteEnd: newDescriptor(w, prefix+`.w`),
	}, nil
}

// Close closes both ends.
func (p *Pipe) Close() error {
	return errors.Join(p.WriteEnd.Close(), p.ReadEnd.Close())
}

// PipeCapacity returns the buffer size of the pipe d belongs to, an upper
// bound where the OS does not report it.
func PipeCapacity(d *Descriptor) (int, error) {
	fd, err := d.Raw()
	if err != nil {
		return 0, err
	}
	return pipeCapacity(fd)
}
