// Package reqparse implements the Greeting scenario's request parser: it
// scans a raw HTTP-ish request for the User-Agent header and commits the
// value to the request scope, forwarding only a token downstream instead
// of copying the header value through every pipe hop.
//
// Grounded line-for-line on examples/greeting/reqparse/servlet.c's byte
// state machine (the state/keyPos/blankLines variables below track the same states:
// scanning for "User-Agent:", inside the value, or past it looking for the
// blank line that ends the header block).
package reqparse

import (
	"context"
	"encoding/binary"

	"github.com/hoohou/plumber/internal/servlet"
	"github.com/hoohou/plumber/servlets/pstdstring"
)

const userAgentKey = "User-Agent:"

type requestParser struct {
	request   servlet.PD
	userAgent servlet.PD
}

// New constructs the request-parser servlet.
func New() servlet.Servlet { return &requestParser{} }

func (s *requestParser) Describe(argv []string) []servlet.Descriptor {
	return []servlet.Descriptor{
		{Name: "request", Direction: servlet.DirInput, TypeName: "plumber.base.raw"},
		{Name: "user-agent", Direction: servlet.DirOutput, TypeName: "plumber.std.string"},
	}
}

func (s *requestParser) Init(ctx context.Context, sc servlet.Context, argv []string) error {
	s.request = sc.Define("request", servlet.DirInput, "plumber.base.raw")
	s.userAgent = sc.Define("user-agent", servlet.DirOutput, "plumber.std.string")
	return nil
}

func (s *requestParser) Exec(ctx context.Context, sc servlet.Context) error {
	out := pstdstring.New(0)

	const (
		stateScanning = iota
		stateInValue
		stateTrailing
	)
	state := stateScanning
	keyPos := 0
	blankLines := 0
	written := 0

	buf := make([]byte, 1)
	for {
		n, err := sc.Read(s.request, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			if sc.EOF(s.request) {
				break
			}
			continue
		}
		ch := buf[0]
		written++

		switch state {
		case stateScanning:
			if ch == '\r' || ch == '\n' {
				keyPos = 0
				continue
			}
			if ch == userAgentKey[keyPos] {
				keyPos++
				if keyPos == len(userAgentKey) {
					state = stateInValue
				}
				continue
			}
			keyPos = 0
		case stateInValue:
			if ch == '\r' || ch == '\n' {
				state = stateTrailing
				blankLines = 1
				continue
			}
			_, _ = out.Write([]byte{ch})
		case stateTrailing:
			if ch == '\r' || ch == '\n' {
				blankLines++
			} else {
				blankLines = 0
			}
			if blankLines >= 4 {
				goto done
			}
		}
	}

done:
	token, err := sc.ScopeAdd(out)
	if err != nil {
		return err
	}
	var tokBuf [4]byte
	binary.LittleEndian.PutUint32(tokBuf[:], uint32(token))
	if _, err := sc.Write(s.userAgent, tokBuf[:]); err != nil {
		return err
	}

	if written > 0 {
		if _, err := sc.Cntl(s.request, "set_flag", "persist"); err != nil {
			return err
		}
	}
	return nil
}

func (s *requestParser) Unload(ctx context.Context, sc servlet.Context) error {
	return nil
}
