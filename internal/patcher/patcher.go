package patcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teamcutter/addonforge/internal/logger"
)

type OpError struct {
	File string
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", e.File, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SourceFile holds one file's text for the length of a patch run.
type SourceFile struct {
	Path     string
	Content  string
	original string
}

func Load(path string) (*SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &SourceFile{Path: path, Content: string(data), original: string(data)}, nil
}

func (f *SourceFile) Apply(op Operation) (Step, error) {
	out, outcome, err := op.Apply(f.Content)
	if err != nil {
		return Step{Op: op.Name(), Outcome: outcome}, &OpError{File: f.Path, Op: op.Name(), Err: err}
	}
	f.Content = out
	return Step{Op: op.Name(), Outcome: outcome}, nil
}

func (f *SourceFile) Changed() bool {
	return f.Content != f.original
}

type Job struct {
	Name     string
	Source   string
	Target   string
	Optional bool
	Ops      []Operation
}

type Step struct {
	Op      string
	Outcome Outcome
}

type Result struct {
	Job     string
	Target  string
	Written bool
	Skipped bool
	Steps   []Step
}

func (r *Result) Applied() int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == Applied {
			n++
		}
	}
	return n
}

// Run loads job.Source once, applies job.Ops in order and writes the result
// to job.Target (or back to Source). Nothing is written unless the bytes on
// disk would change.
func Run(job Job) (*Result, error) {
	log := logger.Logger()

	target := job.Target
	if target == "" {
		target = job.Source
	}
	res := &Result{Job: job.Name, Target: target}

	src, err := Load(job.Source)
	if err != nil {
		if job.Optional && errors.Is(err, os.ErrNotExist) {
			log.Warnf("%s: %s not found, skipping", job.Name, job.Source)
			res.Skipped = true
			return res, nil
		}
		return nil, fmt.Errorf("%s: %w", job.Name, err)
	}

	for _, op := range job.Ops {
		step, err := src.Apply(op)
		res.Steps = append(res.Steps, step)
		if err != nil {
			return res, err
		}
		switch step.Outcome {
		case NotFound:
			log.Warnf("%s: %s: anchor not found, skipping", job.Name, step.Op)
		default:
			log.Debugf("%s: %s: %s", job.Name, step.Op, step.Outcome)
		}
	}

	write := src.Changed()
	if target != job.Source {
		existing, err := os.ReadFile(target)
		write = err != nil || string(existing) != src.Content
	}

	if !write {
		return res, nil
	}

	if err := writeAtomic(target, []byte(src.Content)); err != nil {
		return res, fmt.Errorf("%s: writing %s: %w", job.Name, target, err)
	}
	res.Written = true
	return res, nil
}

// WriteIfAbsent creates path with content unless the file already exists.
func WriteIfAbsent(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := writeAtomic(path, content); err != nil {
		return false, err
	}
	return true, nil
}

// WriteOwned regenerates a file this tool fully owns. Identical content is
// left untouched.
func WriteOwned(path string, content []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err := writeAtomic(path, content); err != nil {
		return false, err
	}
	return true, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
