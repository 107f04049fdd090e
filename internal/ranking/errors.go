package ranking

import "errors"

var (
	ErrModelNotRegistered     = errors.New("model not registered")
	ErrModelAlreadyRegistered = errors.New("model already registered")
	ErrManagerDoesNotExist    = errors.New("manager does not exist")
	ErrTypologyNotImplemented = errors.New("typology not implemented")

	ErrInvalidTypology = errors.New("invalid typology")
	ErrInvalidEntity   = errors.New("invalid entity")
)

var ErrInvalidIdentifier = errors.New("invalid entity identifier")
