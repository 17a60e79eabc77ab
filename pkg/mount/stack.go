package mount

import "errors"

// ReleaseFunc releases one acquired resource.
type ReleaseFunc func() error

// ReleaseStack collects release actions for nested resources. Releases are
// pushed in acquisition order and run in reverse: a resource acquired later
// is always released before one acquired earlier, on every exit path.
type ReleaseStack struct {
	releases []ReleaseFunc
}

// Push records a release action for a just-acquired resource.
func (s *ReleaseStack) Push(f ReleaseFunc) {
	s.releases = append(s.releases, f)
}

// Len returns the number of pending release actions.
func (s *ReleaseStack) Len() int {
	return len(s.releases)
}

// Release runs every pending action in LIFO order. All actions run even
// when earlier ones fail; their errors are combined so that no cleanup
// failure hides another. The stack is emptied: Release runs each action at
// most once.
func (s *ReleaseStack) Release() error {
	var errs []error
	for i := len(s.releases) - 1; i >= 0; i-- {
		if err := s.releases[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.releases = nil
	return errors.Join(errs...)
}
