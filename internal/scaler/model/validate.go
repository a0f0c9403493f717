package model

import (
	"regexp"

	"github.com/pkg/errors"
)

// Group, pipeline, user and stage names end up inside stream members and
// backend resource names, so they are restricted to characters that survive
// both unescaped.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

const maxNameLength = 128

func ValidateName(kind string, name string) error {
	if name == "" {
		return errors.Errorf("%s name must not be empty", kind)
	}
	if len(name) > maxNameLength {
		return errors.Errorf("%s name %q is longer than %d characters", kind, name, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return errors.Errorf("%s name %q may only contain alphanumerics, dots, dashes and underscores", kind, name)
	}
	return nil
}
