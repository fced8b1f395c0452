// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ospoll

import (
	"strings"

	"github.com/joeycumines/go-ospoll/eventloop"
)

// Interest is the set of readiness conditions a poll waits for.
type Interest uint8

const (
	// Readable means a read will not block: data is buffered, or the peer
	// closed its end (EOF).
	Readable Interest = 1 << iota
	// Writable means a write of at least one byte will not block.
	Writable
)

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	var parts []string
	if i&Readable != 0 {
		parts = append(parts, "readable")
	}
	if i&Writable != 0 {
		parts = append(parts, "writable")
	}
	if i&^(Readable|Writable) != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

func (i Interest) valid() bool {
	return i != 0 && i&^(Readable|Writable) == 0
}

// events converts to the reactor's event mask.
func (i Interest) events() (e eventloop.IOEvents) {
	if i&Readable != 0 {
		e |= eventloop.EventRead
	}
	if i&Writable != 0 {
		e |= eventloop.EventWrite
	}
	return
}
