// services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/gewnthar/transit-feeds/config"
	"github.com/gewnthar/transit-feeds/models"
)

// ErrCityNotFound is returned by name based lookups for cities missing from cities.json.
var ErrCityNotFound = config.ErrCityNotFound

// ErrorKind tells whether a failed step is retried by the next scheduled run or needs an
// operator.
type ErrorKind int

const (
	Transient ErrorKind = iota
	Fatal
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "fatal"
}

// Step names a stage of a city refresh.
type Step string

const (
	StepClassify   Step = "classify"
	StepPurge      Step = "purge"
	StepResolve    Step = "resolve"
	StepDownload   Step = "download"
	StepExtract    Step = "extract"
	StepProject    Step = "project"
	StepReplace    Step = "replace"
	StepSyncCities Step = "sync_cities"
)

// StepError is the outcome of a failed refresh step. Table is empty for city wide steps.
type StepError struct {
	Step  Step
	City  string
	Table models.TableKind
	Kind  ErrorKind
	Err   error
}

func (e *StepError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s/%s (%s): %v", e.Step, e.City, e.Table, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Step, e.City, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a StepError of kind Transient.
func IsTransient(err error) bool {
	var stepErr *StepError
	return errors.As(err, &stepErr) && stepErr.Kind == Transient
}
