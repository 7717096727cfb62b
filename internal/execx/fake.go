package execx

import (
	"context"
	"fmt"
	"strings"
)

// Fake is a scripted Runner for tests. Responses are matched by command
// prefix; unmatched commands succeed with empty output. Every invocation is
// recorded in Calls.
type Fake struct {
	Calls   []string
	Outputs map[string]string // command prefix -> stdout
	Errors  map[string]error  // command prefix -> error
	Missing map[string]bool   // binary name -> not on PATH
}

func NewFake() *Fake {
	return &Fake{
		Outputs: map[string]string{},
		Errors:  map[string]error{},
		Missing: map[string]bool{},
	}
}

func (f *Fake) record(c Cmd) string {
	s := c.String()
	f.Calls = append(f.Calls, s)
	return s
}

func (f *Fake) match(s string) (string, error) {
	for prefix, err := range f.Errors {
		if strings.HasPrefix(s, prefix) {
			return "", err
		}
	}
	for prefix, out := range f.Outputs {
		if strings.HasPrefix(s, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (f *Fake) Run(ctx context.Context, c Cmd) error {
	_, err := f.match(f.record(c))
	return err
}

func (f *Fake) Output(ctx context.Context, c Cmd) (string, error) {
	return f.match(f.record(c))
}

func (f *Fake) LookPath(name string) bool { return !f.Missing[name] }

// CallsWithPrefix returns recorded invocations starting with prefix.
func (f *Fake) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded calls but keeps the scripted responses.
func (f *Fake) Reset() { f.Calls = nil }

var _ Runner = (*Fake)(nil)

// ErrScripted builds a stable error for scripting fake failures.
func ErrScripted(msg string) error { return fmt.Errorf("%s", msg) }
