package session

import (
	"errors"
	"fmt"

	"epoch/internal/model"
)

var ErrAlreadyOffline = errors.New("user is already offline")

// TransitionError rejects a command issued from the wrong state. Its text
// is shown to the user as is.
type TransitionError struct {
	Command  string
	Required model.State
	Actual   model.State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("In order to use [%s], you must be in %s mode. You are in %s mode!", e.Command, e.Required, e.Actual)
}
