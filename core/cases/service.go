package cases

import (
	"context"
	"fmt"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/live"
	"github.com/trezcool/clinic/core/user"
)

// DocumentsPrefix is the blob key prefix of uploaded case documents.
const DocumentsPrefix = "case-documents"

var (
	// errors
	ErrNotFound      = errors.New("case not found")
	errNoDocument    = errors.New("no uploaded document to review")
	errUnknownUser   = errors.New("user not found")
	errNotAStudent   = errors.New("cases can only be assigned to students")
	assignedTemplate = "case_assigned"
)

type (
	Repository interface {
		// CreateCase sets the creation and update times.
		CreateCase(ctx context.Context, c Case) (Case, error)
		// GetCase returns ErrNotFound when no Case matches.
		GetCase(ctx context.Context, id string) (Case, error)
		// QueryCases matches AssignedTo and Status exactly, ignores Search, and orders by createdAt desc.
		QueryCases(ctx context.Context, filter CaseFilter) ([]Case, error)
		// UpdateCase returns ErrNotFound when no Case matches.
		UpdateCase(ctx context.Context, id string, upd Update) (Case, error)
		// CreateProgress sets the creation time.
		CreateProgress(ctx context.Context, p Progress) (Progress, error)
		// QueryProgress orders by createdAt desc.
		QueryProgress(ctx context.Context, filter ProgressFilter) ([]Progress, error)
	}

	Service interface {
		Assign(ctx context.Context, nc NewCase, actor user.User) (Assignment, error)
		Get(ctx context.Context, id string) (Case, error)
		Query(ctx context.Context, filter CaseFilter) ([]Case, error)
		SetStatus(ctx context.Context, id string, su StatusUpdate) (Case, error)
		MarkDocumentReviewed(ctx context.Context, id string) (Case, error)
		AttachDocument(ctx context.Context, id string, doc Document) (Case, error)
		SaveProgress(ctx context.Context, id string, actor user.User, pu ProgressUpdate) (Progress, error)
		ListProgress(ctx context.Context, filter ProgressFilter) ([]Progress, error)
		// Reconcile makes the case percentage mirror its latest Progress record and reports a repair.
		Reconcile(ctx context.Context, id string) (bool, error)
		// ReconcileAll reconciles every case and returns the number of repaired ones.
		ReconcileAll(ctx context.Context) (int, error)
		WatchCases(ctx context.Context, filter CaseFilter) <-chan live.Snapshot
		WatchProgress(ctx context.Context, filter ProgressFilter) <-chan live.Snapshot
	}

	Options struct {
		Repo     Repository
		UserSvc  user.Service
		Blobs    core.BlobStore
		MailSvc  core.EmailService
		Hub      *live.Hub
		Validate *validator.Validate
		Logger   core.Logger
	}

	service struct {
		repo     Repository
		userSvc  user.Service
		blobs    core.BlobStore
		mailSvc  core.EmailService
		hub      *live.Hub
		validate *validator.Validate
		logger   core.Logger
		nowFunc  func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(opts Options) Service {
	return &service{
		repo:     opts.Repo,
		userSvc:  opts.UserSvc,
		blobs:    opts.Blobs,
		mailSvc:  opts.MailSvc,
		hub:      opts.Hub,
		validate: opts.Validate,
		logger:   opts.Logger,
		nowFunc:  time.Now,
	}
}

func (svc *service) resolveAssignee(ctx context.Context, id string) (user.User, error) {
	usr, err := svc.userSvc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "assignedTo", Error: errUnknownUser.Error()})
		}
		return user.User{}, core.NewStoreError(errors.Wrap(err, "finding assignee"))
	}
	if !usr.IsStudent() {
		return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "assignedTo", Error: errNotAStudent.Error()})
	}
	return usr, nil
}

func (svc *service) Assign(ctx context.Context, nc NewCase, actor user.User) (Assignment, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Assignment{}, err
	}
	assignee, err := svc.resolveAssignee(ctx, nc.AssignedTo)
	if err != nil {
		return Assignment{}, err
	}

	createdBy := actor.ID
	if createdBy == "" {
		createdBy = DefaultCreatedBy
	}
	c, err := svc.repo.CreateCase(ctx, Case{
		ID:                 uuid.NewString(),
		Title:              nc.Title,
		Description:        nc.Description,
		Status:             StatusOpen,
		AssignedTo:         assignee.ID,
		CreatedBy:          createdBy,
		ProgressPercentage: 0,
		DocumentStatus:     DocumentNotUploaded,
	})
	if err != nil {
		return Assignment{}, core.NewStoreError(errors.Wrap(err, "creating case"))
	}

	svc.notifyAssignee(assignee, c)
	return Assignment{
		Case:         c,
		AssigneeName: assignee.DisplayName(),
		Message:      fmt.Sprintf("Case assigned successfully: %s → %s", c.Title, assignee.DisplayName()),
	}, nil
}

func (svc *service) notifyAssignee(assignee user.User, c Case) {
	if svc.mailSvc == nil || assignee.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: assignee.DisplayName(), Address: assignee.Email}},
		Subject:      "New case assigned: " + c.Title,
		TemplateName: assignedTemplate,
		TemplateData: map[string]interface{}{
			"Name":        assignee.DisplayName(),
			"CaseID":      c.ID,
			"Title":       c.Title,
			"Description": c.Description,
		},
	})
}

func (svc *service) Get(ctx context.Context, id string) (Case, error) {
	return svc.repo.GetCase(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter CaseFilter) ([]Case, error) {
	filter.Clean()
	cases, err := svc.repo.QueryCases(ctx, filter)
	if err != nil || filter.Search == "" {
		return cases, err
	}

	matches := make([]Case, 0, len(cases))
	for _, c := range cases {
		if fuzzy.MatchNormalizedFold(filter.Search, c.Title) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

func (svc *service) SetStatus(ctx context.Context, id string, su StatusUpdate) (Case, error) {
	if err := su.Validate(svc.validate); err != nil {
		return Case{}, err
	}
	c, err := svc.repo.UpdateCase(ctx, id, Update{Status: &su.Status})
	if err != nil {
		return Case{}, svc.storeError(err, "updating case status")
	}
	return c, nil
}

func (svc *service) MarkDocumentReviewed(ctx context.Context, id string) (Case, error) {
	c, err := svc.repo.GetCase(ctx, id)
	if err != nil {
		return Case{}, svc.storeError(err, "getting case")
	}
	switch c.DocumentStatus {
	case DocumentReviewed:
		return c, nil
	case DocumentUploaded:
	default:
		return Case{}, core.NewValidationError(nil, core.FieldError{Field: "documentStatus", Error: errNoDocument.Error()})
	}

	reviewed := DocumentReviewed
	if c, err = svc.repo.UpdateCase(ctx, id, Update{DocumentStatus: &reviewed}); err != nil {
		return Case{}, svc.storeError(err, "updating document status")
	}
	return c, nil
}

// DocumentKey returns the blob key of a document uploaded at t.
func DocumentKey(caseID, filename string, t time.Time) string {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return fmt.Sprintf("%s/%s/%d-%s", DocumentsPrefix, caseID, t.UnixMilli(), filename)
}

func (svc *service) AttachDocument(ctx context.Context, id string, doc Document) (Case, error) {
	if err := svc.validate.Struct(doc); err != nil {
		return Case{}, err
	}
	if _, err := svc.repo.GetCase(ctx, id); err != nil {
		return Case{}, svc.storeError(err, "getting case")
	}
	return svc.attachDocument(ctx, id, doc)
}

func (svc *service) attachDocument(ctx context.Context, id string, doc Document) (Case, error) {
	key := DocumentKey(id, doc.Filename, svc.nowFunc())
	url, err := svc.blobs.Put(ctx, key, doc.Content, doc.ContentType)
	if err != nil {
		return Case{}, core.NewStoreError(errors.Wrap(err, "uploading document"))
	}

	uploaded := DocumentUploaded
	c, err := svc.repo.UpdateCase(ctx, id, Update{DocumentStatus: &uploaded, DocumentURL: &url})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("document %s uploaded but case %s not updated", key, id), err)
		return Case{}, svc.storeError(err, "updating case document")
	}
	return c, nil
}

func (svc *service) SaveProgress(ctx context.Context, id string, actor user.User, pu ProgressUpdate) (Progress, error) {
	if err := pu.Validate(svc.validate); err != nil {
		return Progress{}, err
	}
	if _, err := svc.repo.GetCase(ctx, id); err != nil {
		return Progress{}, svc.storeError(err, "getting case")
	}

	if pu.Document != nil {
		if _, err := svc.attachDocument(ctx, id, *pu.Document); err != nil {
			return Progress{}, err
		}
	}

	p, err := svc.repo.CreateProgress(ctx, Progress{
		ID:                 uuid.NewString(),
		CaseID:             id,
		UserID:             actor.ID,
		ProgressPercentage: pu.ProgressPercentage,
		Notes:              core.StringPtr(pu.Notes),
	})
	if err != nil {
		return Progress{}, core.NewStoreError(errors.Wrap(err, "saving progress"))
	}

	if _, err = svc.repo.UpdateCase(ctx, id, Update{ProgressPercentage: &p.ProgressPercentage}); err != nil {
		svc.logger.Warn(fmt.Sprintf("progress %s saved but case %s not updated, reconciliation pending", p.ID, id), err, actor)
		return Progress{}, svc.storeError(err, "updating case progress")
	}
	return p, nil
}

func (svc *service) ListProgress(ctx context.Context, filter ProgressFilter) ([]Progress, error) {
	filter.Clean()
	return svc.repo.QueryProgress(ctx, filter)
}

func (svc *service) Reconcile(ctx context.Context, id string) (bool, error) {
	c, err := svc.repo.GetCase(ctx, id)
	if err != nil {
		return false, err
	}
	return svc.reconcile(ctx, c)
}

func (svc *service) reconcile(ctx context.Context, c Case) (bool, error) {
	history, err := svc.repo.QueryProgress(ctx, ProgressFilter{CaseID: c.ID})
	if err != nil {
		return false, errors.Wrap(err, "querying progress")
	}
	if len(history) == 0 || history[0].ProgressPercentage == c.ProgressPercentage {
		return false, nil
	}

	latest := history[0].ProgressPercentage
	if _, err = svc.repo.UpdateCase(ctx, c.ID, Update{ProgressPercentage: &latest}); err != nil {
		return false, errors.Wrap(err, "updating case progress")
	}
	return true, nil
}

func (svc *service) ReconcileAll(ctx context.Context) (int, error) {
	all, err := svc.repo.QueryCases(ctx, CaseFilter{})
	if err != nil {
		return 0, errors.Wrap(err, "querying cases")
	}

	var repaired int
	for _, c := range all {
		if err = ctx.Err(); err != nil {
			return repaired, err
		}
		ok, err := svc.reconcile(ctx, c)
		if err != nil {
			return repaired, errors.Wrapf(err, "reconciling case %s", c.ID)
		}
		if ok {
			repaired++
		}
	}
	return repaired, nil
}

func (svc *service) WatchCases(ctx context.Context, filter CaseFilter) <-chan live.Snapshot {
	return live.Watch(ctx, svc.hub, func(ctx context.Context) (interface{}, error) {
		return svc.Query(ctx, filter)
	}, core.CollectionCases)
}

func (svc *service) WatchProgress(ctx context.Context, filter ProgressFilter) <-chan live.Snapshot {
	return live.Watch(ctx, svc.hub, func(ctx context.Context) (interface{}, error) {
		return svc.ListProgress(ctx, filter)
	}, core.CollectionProgress)
}

// storeError keeps not-found errors as-is.
func (svc *service) storeError(err error, msg string) error {
	if errors.Cause(err) == ErrNotFound {
		return ErrNotFound
	}
	return core.NewStoreError(errors.Wrap(err, msg))
}
