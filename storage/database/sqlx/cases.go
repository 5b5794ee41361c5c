package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
)

type caseRow struct {
	ID                 string      `db:"id"`
	Title              string      `db:"title"`
	Description        string      `db:"description"`
	Status             string      `db:"status"`
	AssignedTo         string      `db:"assigned_to"`
	CreatedBy          string      `db:"created_by"`
	ProgressPercentage int         `db:"progress_percentage"`
	DocumentStatus     string      `db:"document_status"`
	DocumentURL        null.String `db:"document_url"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func (row caseRow) toCase() cases.Case {
	return cases.Case{
		ID:                 row.ID,
		Title:              row.Title,
		Description:        row.Description,
		Status:             row.Status,
		AssignedTo:         row.AssignedTo,
		CreatedBy:          row.CreatedBy,
		ProgressPercentage: row.ProgressPercentage,
		DocumentStatus:     row.DocumentStatus,
		DocumentURL:        row.DocumentURL.Ptr(),
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}
}

type progressRow struct {
	ID                 string      `db:"id"`
	CaseID             string      `db:"case_id"`
	UserID             string      `db:"user_id"`
	ProgressPercentage int         `db:"progress_percentage"`
	Notes              null.String `db:"notes"`
	CreatedAt          time.Time   `db:"created_at"`
}

func (row progressRow) toProgress() cases.Progress {
	return cases.Progress{
		ID:                 row.ID,
		CaseID:             row.CaseID,
		UserID:             row.UserID,
		ProgressPercentage: row.ProgressPercentage,
		Notes:              row.Notes.Ptr(),
		CreatedAt:          row.CreatedAt.UTC(),
	}
}

const (
	caseColumns = "id, title, description, status, assigned_to, created_by, progress_percentage, " +
		"document_status, document_url, created_at, updated_at"
	progressColumns = "id, case_id, user_id, progress_percentage, notes, created_at"
)

type caseRepository struct {
	db *DB
}

func NewCaseRepository(db *DB) cases.Repository {
	return &caseRepository{db: db}
}

func (repo *caseRepository) CreateCase(ctx context.Context, c cases.Case) (cases.Case, error) {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	q := repo.db.Rebind(`INSERT INTO cases (` + caseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q,
		c.ID, c.Title, c.Description, c.Status, c.AssignedTo, c.CreatedBy, c.ProgressPercentage,
		c.DocumentStatus, null.StringFromPtr(c.DocumentURL), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return cases.Case{}, errors.Wrap(mapError(err), "inserting case")
	}
	repo.db.notify(ctx, core.CollectionCases)
	return c, nil
}

func (repo *caseRepository) GetCase(ctx context.Context, id string) (cases.Case, error) {
	var row caseRow
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(`SELECT `+caseColumns+` FROM cases WHERE id = ?`), id); err != nil {
		if isNoRows(err) {
			return cases.Case{}, cases.ErrNotFound
		}
		return cases.Case{}, errors.Wrap(mapError(err), "selecting case")
	}
	return row.toCase(), nil
}

func (repo *caseRepository) QueryCases(ctx context.Context, filter cases.CaseFilter) ([]cases.Case, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	q := `SELECT ` + caseColumns + ` FROM cases`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`

	var rows []caseRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(mapError(err), "selecting cases")
	}
	all := make([]cases.Case, 0, len(rows))
	for _, row := range rows {
		all = append(all, row.toCase())
	}
	return all, nil
}

func (repo *caseRepository) UpdateCase(ctx context.Context, id string, upd cases.Update) (cases.Case, error) {
	// only save set fields
	set := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if upd.Status != nil {
		set = append(set, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.ProgressPercentage != nil {
		set = append(set, "progress_percentage = ?")
		args = append(args, *upd.ProgressPercentage)
	}
	if upd.DocumentStatus != nil {
		set = append(set, "document_status = ?")
		args = append(args, *upd.DocumentStatus)
	}
	if upd.DocumentURL != nil {
		set = append(set, "document_url = ?")
		args = append(args, *upd.DocumentURL)
	}
	args = append(args, id)

	q := repo.db.Rebind(`UPDATE cases SET ` + strings.Join(set, ", ") + ` WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return cases.Case{}, errors.Wrap(mapError(err), "updating case")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cases.Case{}, cases.ErrNotFound
	}
	repo.db.notify(ctx, core.CollectionCases)
	return repo.GetCase(ctx, id)
}

func (repo *caseRepository) CreateProgress(ctx context.Context, p cases.Progress) (cases.Progress, error) {
	p.CreatedAt = time.Now().UTC()

	q := repo.db.Rebind(`INSERT INTO progress (` + progressColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q, p.ID, p.CaseID, p.UserID, p.ProgressPercentage, null.StringFromPtr(p.Notes), p.CreatedAt)
	if err != nil {
		return cases.Progress{}, errors.Wrap(mapError(err), "inserting progress")
	}
	repo.db.notify(ctx, core.CollectionProgress)
	return p, nil
}

func (repo *caseRepository) QueryProgress(ctx context.Context, filter cases.ProgressFilter) ([]cases.Progress, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.CaseID != "" {
		where = append(where, "case_id = ?")
		args = append(args, filter.CaseID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	q := `SELECT ` + progressColumns + ` FROM progress`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`

	var rows []progressRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(mapError(err), "selecting progress")
	}
	history := make([]cases.Progress, 0, len(rows))
	for _, row := range rows {
		history = append(history, row.toProgress())
	}
	return history, nil
}
