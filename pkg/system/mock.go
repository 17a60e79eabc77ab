package system

import (
	"context"
	"sync"

	"github.com/cuemby/burrow/pkg/errdefs"
)

// MockRunner records commands instead of executing them. It backs the
// mount, loop device and container session tests so that validation and
// cleanup ordering can be verified without touching the kernel.
type MockRunner struct {
	mu sync.Mutex

	// Calls records each command line passed to Run, in order.
	Calls [][]string

	// RunFunc, when set, decides the outcome of each Run call. When nil
	// every command succeeds.
	RunFunc func(ctx context.Context, cmd Command) error

	// Paths maps program names to resolved paths for LookPath. When nil,
	// every lookup succeeds with a synthetic /usr/bin path.
	Paths map[string]string
}

func (m *MockRunner) Run(ctx context.Context, cmd Command) error {
	m.mu.Lock()
	argv := make([]string, len(cmd.Argv))
	copy(argv, cmd.Argv)
	m.Calls = append(m.Calls, argv)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, cmd)
	}
	return nil
}

func (m *MockRunner) LookPath(name string) (string, error) {
	if m.Paths == nil {
		return "/usr/bin/" + name, nil
	}
	if path, ok := m.Paths[name]; ok {
		return path, nil
	}
	return "", errdefs.Environmentf("required utility %q not found in PATH", name)
}

// CallCount returns how many commands were run whose argv starts with the
// given prefix.
func (m *MockRunner) CallCount(prefix ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.Calls {
		if hasPrefix(call, prefix) {
			count++
		}
	}
	return count
}

func hasPrefix(argv, prefix []string) bool {
	if len(argv) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if argv[i] != p {
			return false
		}
	}
	return true
}
