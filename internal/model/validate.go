package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidParams is returned when task parameters are structurally malformed
var ErrInvalidParams = errors.New("invalid task parameters")

var validate = validator.New()

// Validate checks structural well-formedness of the task's parameters.
// Nothing beyond shape is verified: reachability and file existence surface later as events.
func (t *Task) Validate() error {
	switch t.Kind {
	case KindDownload:
		if t.Download == nil || t.Conversion != nil {
			return fmt.Errorf("%w: download task needs download parameters only", ErrInvalidParams)
		}
		if err := validate.Struct(t.Download); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	case KindConversion:
		if t.Conversion == nil || t.Download != nil {
			return fmt.Errorf("%w: conversion task needs conversion parameters only", ErrInvalidParams)
		}
		if err := validate.Struct(t.Conversion); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, t.Kind)
	}
	return nil
}
