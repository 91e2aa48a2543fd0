package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of the book pipeline.
type Stage string

const (
	StageLoad     Stage = "load"
	StageConcept  Stage = "concept"
	StageTitle    Stage = "title"
	StageOutline  Stage = "outline"
	StageProfiles Stage = "profiles"
	StagePrepare  Stage = "prepare"
	StageCompress Stage = "compress"
	StageWrite    Stage = "write"
	StageSummary  Stage = "summary"
	StageEnhance  Stage = "enhance"
	StageCompile  Stage = "compile"
)

// StageError is fatal failure which stopped the run, it names stage and
// chapter (0 for book level stages) so the run could be continued from there.
type StageError struct {
	Stage   Stage
	Chapter int
	Err     error
}

func (e *StageError) Error() string {
	if e.Chapter > 0 {
		return fmt.Sprintf("stage %s, chapter %d: %v", e.Stage, e.Chapter, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageErr wraps err unless it already carries stage information.
func stageErr(stage Stage, chapter int, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Chapter: chapter, Err: err}
}

// RangeError reports invalid chapter range of continuation request.
type RangeError struct {
	Start, End int
	// Bound is the largest acceptable chapter index.
	Bound  int
	Reason string
}

func (e *RangeError) Error() string {
	msg := "invalid chapter range"
	if e.Start > 0 || e.End > 0 {
		msg += fmt.Sprintf(" %d-%d", e.Start, e.End)
	}
	switch {
	case e.Bound > 0:
		msg += fmt.Sprintf(", expected 1 <= start <= end <= %d", e.Bound)
	case e.Reason == "":
		msg += ", book has no chapters"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ErrEmptyText is returned when nothing is left of the response after sanitization.
var ErrEmptyText = errors.New("response has no content after sanitization")
