package domain

import (
	"errors"
	"fmt"
)

var (
	ErrToolMissing           = errors.New("required tool is not installed or not in PATH")
	ErrBootstrapExhausted    = errors.New("bootstrap exhausted all mirrors")
	ErrBootstrapScript       = errors.New("bootstrap script failed")
	ErrBootstrapVerification = errors.New("bootstrap verification failed")
	ErrNotBootstrapped       = errors.New("package manager is not installed, run bootstrap first")
	ErrRemoveFailed          = errors.New("failed to remove existing package")
	ErrInstallFailed         = errors.New("package installation failed")
	ErrArchiveMissing        = errors.New("archive missing: install step did not run or used a different mechanism")
)

// StageError ties a failure to the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func WrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
