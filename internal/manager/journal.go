package manager

import (
	"github.com/teamcutter/addonforge/internal/domain"
	"github.com/teamcutter/addonforge/internal/logger"
)

// Track records fn as one journal entry for stage. Journal failures are
// logged and never fail the stage itself. The returned error is wrapped in a
// *domain.StageError.
func Track(j domain.Journal, stage domain.Stage, scratch string, fn func() (domain.StageStatus, string, error)) error {
	log := logger.Logger()
	if j == nil {
		j = nopJournal{}
	}

	if err := j.Begin(stage, scratch); err != nil {
		log.Warnf("journal: begin %s: %v", stage, err)
	}

	status, detail, err := fn()
	if err != nil {
		status, detail = domain.StatusFailed, err.Error()
	}

	if jerr := j.Finish(stage, status, detail); jerr != nil {
		log.Warnf("journal: finish %s: %v", stage, jerr)
	}

	return domain.WrapStage(stage, err)
}

type nopJournal struct{}

func (nopJournal) Begin(domain.Stage, string) error { return nil }
func (nopJournal) Finish(domain.Stage, domain.StageStatus, string) error { return nil }
