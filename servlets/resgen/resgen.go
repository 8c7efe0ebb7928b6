// Package resgen implements the Greeting scenario's response generator: it
// reads the user-agent token reqparse committed to scope and renders the
// HTML response, routing it through the async offload path the way the
// original servlet declares its response pipe PIPE_ASYNC; the write itself
// happens in the async cleanup phase, back on the step loop.
//
// Grounded on examples/greeting/resgen/servlet.c.
package resgen

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hoohou/plumber/internal/servlet"
	"github.com/hoohou/plumber/servlets/pstdstring"
)

const (
	resultPrefix = "<html><head><title>Hello World</title></head>" +
		"<body>Hi there, this is Plumber!<br/>" +
		"BTW, your user agent string is "
	resultSuffix = "</body></html>"
)

type responseGenerator struct {
	userAgent servlet.PD
	response  servlet.PD
}

// New constructs the response-generator servlet.
func New() servlet.Servlet { return &responseGenerator{} }

func (s *responseGenerator) Describe(argv []string) []servlet.Descriptor {
	return []servlet.Descriptor{
		{Name: "user-agent", Direction: servlet.DirInput, TypeName: "plumber.std.string"},
		{Name: "response", Direction: servlet.DirOutput, TypeName: "plumber.base.raw", Flags: servlet.DescAsync},
	}
}

func (s *responseGenerator) Init(ctx context.Context, sc servlet.Context, argv []string) error {
	s.userAgent = sc.Define("user-agent", servlet.DirInput, "plumber.std.string")
	s.response = sc.Define("response", servlet.DirOutput, "plumber.base.raw")
	return nil
}

func (s *responseGenerator) Exec(ctx context.Context, sc servlet.Context) error {
	var tokBuf [4]byte
	if _, err := readFull(sc, s.userAgent, tokBuf[:]); err != nil {
		return err
	}
	token := servlet.Token(binary.LittleEndian.Uint32(tokBuf[:]))

	data, err := sc.ScopeGet(token)
	if err != nil {
		return err
	}
	ua, _ := data.(*pstdstring.Buffer)
	uaString := ""
	if ua != nil {
		uaString = ua.String()
	}

	body := fmt.Sprintf(resultPrefix+"%s"+resultSuffix, uaString)
	headers := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nConnection: keep-alive\r\nContent-Length: %d\r\n\r\n", len(body))
	payload := append([]byte(headers), body...)

	// The response pipe is declared ASYNC (the original marks it
	// PIPE_OUTPUT|PIPE_ASYNC), so the response goes through the async
	// offload path: setup hands the rendered payload to the async pool, exec
	// runs there with no pipe access (a task's pipes are only safe to touch
	// from its own RSC's step), and cleanup performs the write back on the
	// step loop once exec returns.
	return sc.Async(
		func(ctx context.Context) (interface{}, error) {
			return payload, nil
		},
		func(ctx context.Context, state interface{}) (interface{}, error) {
			return state, nil
		},
		func(ctx context.Context, result interface{}, err error) {
			if err != nil {
				return
			}
			buf, _ := result.([]byte)
			_, _ = sc.Write(s.response, buf)
		},
	)
}

func (s *responseGenerator) Unload(ctx context.Context, sc servlet.Context) error {
	return nil
}

func readFull(sc servlet.Context, pd servlet.PD, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := sc.Read(pd, buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			if sc.EOF(pd) {
				break
			}
			continue
		}
		total += n
	}
	return total, nil
}
