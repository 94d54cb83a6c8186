package config

import (
	"errors"
	"fmt"
)

//ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid value")

//InputError is a problem with the analysis document. Element is the
//dotted path of the offending element, e.g. "mcmc.chain_length" or
//"priors[1].parameter".
type InputError struct {
	Element string
	Err     error
}

func (e *InputError) Error() string {
	if e.Element == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Element, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

//Errorf builds an InputError for element.
func Errorf(element, format string, args ...any) *InputError {
	return &InputError{Element: element, Err: fmt.Errorf(format, args...)}
}
