// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix && !linux && !darwin

package ospoll

func createPipe() (r, w int, err error) {
	return -1, -1, ErrUnsupported
}

func pipeCapacity(int) (int, error) {
	return 0, ErrUnsupported
}
