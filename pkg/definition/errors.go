package definition

import "errors"

var (
	ErrFailedToParseYAML = errors.New("failed to parse machine definition")
	ErrFailedToReadFile  = errors.New("failed to read machine definition file")
	ErrInvalidDefinition = errors.New("invalid machine definition")
	ErrUnknownGuard      = errors.New("unknown guard")
	ErrUnknownAction     = errors.New("unknown action")
	ErrDuplicateName     = errors.New("name already registered")
)
