// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

// Read reads up to maxLen bytes from d without blocking. It returns
// [ErrWouldBlock] if nothing is available yet, and [ErrEOF] (io.EOF) once
// the writer has closed and all data has been read.
func Read(d *Descriptor, maxLen int) ([]byte, error) {
	if d == nil {
		return nil, ErrInvalidDescriptor
	}
	if maxLen <= 0 {
		if d.Closed() {
			return nil, ErrClosedDescriptor
		}
		return []byte{}, nil
	}
	b := make([]byte, maxLen)
	n, err := d.Read(b)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

// Write writes as much of b to d as the OS accepts without blocking,
// returning the count. Partial writes are normal. It returns
// [ErrWouldBlock] if no bytes were accepted, and an error matching
// [ErrBrokenPipe] if the read end is closed. An empty b always succeeds,
// without consulting the OS, even if the pipe is full.
func Write(d *Descriptor, b []byte) (int, error) {
	if d == nil {
		return 0, ErrInvalidDescriptor
	}
	return d.write(b)
}
