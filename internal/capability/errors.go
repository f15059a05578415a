package capability

import "errors"

// Domain errors for the capability package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, capability.ErrDefinitionNotFound) {
//	    // fall back to the parameter mapping table
//	}
var (
	// ErrDefinitionNotFound is returned when no definition matches a device type.
	ErrDefinitionNotFound = errors.New("capability: definition not found")

	// ErrInvalidDefinition is returned when a definition fails validation.
	ErrInvalidDefinition = errors.New("capability: invalid definition")

	// ErrHandEdited is returned when refresh would overwrite a hand-edited
	// file without force.
	ErrHandEdited = errors.New("capability: definition is hand-edited")

	// ErrUnknownGeneration is returned when capability discovery cannot
	// determine the probing dialect for a device.
	ErrUnknownGeneration = errors.New("capability: unknown device generation")
)
