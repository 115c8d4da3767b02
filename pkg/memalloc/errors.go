package memalloc

import "go.uber.org/multierr"

func joinErrors(errs []error) error {
	return multierr.Combine(errs...)
}
