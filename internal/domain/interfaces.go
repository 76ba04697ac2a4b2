package domain

import (
	"context"
)

// Runner executes external commands. A non-zero exit is reported through
// Result.ExitCode; err is reserved for processes that could not be started.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

type Extractor interface {
	Extract(src, dest string) error
}

type ArchiveLocator interface {
	Find(prefix string, exts []string) (*Archive, error)
}

// Journal records stage outcomes. scratch names a directory the stage writes
// to and that must be discarded if the stage never finishes.
type Journal interface {
	Begin(stage Stage, scratch string) error
	Finish(stage Stage, status StageStatus, detail string) error
}
