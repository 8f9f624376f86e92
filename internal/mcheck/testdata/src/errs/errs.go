package errs

import (
	"errors"
	"fmt"
)

func bad() error {
	err := errors.New("oops") // want `use xerrors.New instead of errors.New`
	return fmt.Errorf("wrap: %v", err) // want `use xerrors.Errorf instead of fmt.Errorf`
}

func good() string {
	return fmt.Sprintf("%d", 1)
}
