package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
)

type caseRepository struct {
	db *DB
}

func NewCaseRepository(db *DB) cases.Repository {
	return &caseRepository{db: db}
}

func (repo *caseRepository) CreateCase(_ context.Context, c cases.Case) (cases.Case, error) {
	tbl := repo.db.cases
	tbl.Lock()
	defer tbl.Unlock()

	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	tbl.table[c.ID] = &c
	repo.db.notify(core.CollectionCases)
	return c, nil
}

func (repo *caseRepository) GetCase(_ context.Context, id string) (cases.Case, error) {
	tbl := repo.db.cases
	tbl.RLock()
	defer tbl.RUnlock()

	if c, ok := tbl.table[id]; ok {
		return *c, nil
	}
	return cases.Case{}, cases.ErrNotFound
}

func (repo *caseRepository) QueryCases(_ context.Context, filter cases.CaseFilter) ([]cases.Case, error) {
	tbl := repo.db.cases
	tbl.RLock()
	defer tbl.RUnlock()

	all := make([]cases.Case, 0, len(tbl.table))
	for _, c := range tbl.table {
		if filter.AssignedTo != "" && c.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

func (repo *caseRepository) UpdateCase(_ context.Context, id string, upd cases.Update) (cases.Case, error) {
	tbl := repo.db.cases
	tbl.Lock()
	defer tbl.Unlock()

	c, ok := tbl.table[id]
	if !ok {
		return cases.Case{}, cases.ErrNotFound
	}
	// only save set fields
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.ProgressPercentage != nil {
		c.ProgressPercentage = *upd.ProgressPercentage
	}
	if upd.DocumentStatus != nil {
		c.DocumentStatus = *upd.DocumentStatus
	}
	if upd.DocumentURL != nil {
		url := *upd.DocumentURL
		c.DocumentURL = &url
	}
	c.UpdatedAt = time.Now().UTC()
	repo.db.notify(core.CollectionCases)
	return *c, nil
}

func (repo *caseRepository) CreateProgress(_ context.Context, p cases.Progress) (cases.Progress, error) {
	tbl := repo.db.progress
	tbl.Lock()
	defer tbl.Unlock()

	p.CreatedAt = time.Now().UTC()
	tbl.rows = append(tbl.rows, p)
	repo.db.notify(core.CollectionProgress)
	return p, nil
}

func (repo *caseRepository) QueryProgress(_ context.Context, filter cases.ProgressFilter) ([]cases.Progress, error) {
	tbl := repo.db.progress
	tbl.RLock()
	defer tbl.RUnlock()

	// newest first: walk backwards so that equal timestamps keep insertion order reversed
	history := make([]cases.Progress, 0, len(tbl.rows))
	for i := len(tbl.rows) - 1; i >= 0; i-- {
		p := tbl.rows[i]
		if filter.CaseID != "" && p.CaseID != filter.CaseID {
			continue
		}
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		history = append(history, p)
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].CreatedAt.After(history[j].CreatedAt) })
	return history, nil
}
