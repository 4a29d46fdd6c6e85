package avgear

import "errors"

// Domain errors for the AVGear bridge package.
var (
	// ErrInvalidAction is returned when a command message carries an
	// action the bridge does not recognise.
	ErrInvalidAction = errors.New("avgear: invalid action")

	// ErrInvalidParameters is returned when a command message is missing
	// required parameters or carries out-of-range values.
	ErrInvalidParameters = errors.New("avgear: invalid parameters")
)
