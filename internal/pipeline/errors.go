package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage names a step of a run.
type Stage string

const (
	// StageConfig covers manifest, flag and credential problems.
	StageConfig Stage = "config"
	// StageFetch covers Confluence, Jira and repository requests.
	StageFetch Stage = "fetch"
	// StageNormalize, StageMerge and StageBuild never fail on content; they
	// fail when the run is interrupted, and build also on bad prompt files.
	StageNormalize Stage = "normalize"
	StageMerge     Stage = "merge"
	StageBuild     Stage = "build"
	// StageOutput covers writing the context file.
	StageOutput Stage = "output"
)

var exitCodes = map[Stage]int{
	StageConfig:    2,
	StageFetch:     3,
	StageNormalize: 4,
	StageMerge:     5,
	StageBuild:     6,
	StageOutput:    7,
}

// StageError is a failure tagged with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitCode is the process exit code for the stage.
func (e *StageError) ExitCode() int {
	if code, ok := exitCodes[e.Stage]; ok {
		return code
	}
	return 1
}

// checkpoint reports a cancelled run as a failure of the stage about to start.
func checkpoint(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return Fail(stage, fmt.Errorf("interrupted: %w", err))
	}
	return nil
}

// Fail tags err with stage, keeping an existing tag. A nil err stays nil.
func Fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// ExitCode maps err to a process exit code: 0 for nil, the stage code for
// stage errors and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.ExitCode()
	}
	return 1
}
