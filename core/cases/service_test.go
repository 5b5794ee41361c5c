package cases_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/live"
	"github.com/trezcool/clinic/core/user"
	"github.com/trezcool/clinic/fs"
	"github.com/trezcool/clinic/services/email"
	"github.com/trezcool/clinic/storage/blob"
	"github.com/trezcool/clinic/storage/database/inmem"
	"github.com/trezcool/clinic/testutil"
)

// faultyRepo fails the writes whose error is set.
type faultyRepo struct {
	cases.Repository
	createErr error
	updateErr error
}

func (r *faultyRepo) CreateCase(ctx context.Context, c cases.Case) (cases.Case, error) {
	if r.createErr != nil {
		return cases.Case{}, r.createErr
	}
	return r.Repository.CreateCase(ctx, c)
}

func (r *faultyRepo) UpdateCase(ctx context.Context, id string, upd cases.Update) (cases.Case, error) {
	if r.updateErr != nil {
		return cases.Case{}, r.updateErr
	}
	return r.Repository.UpdateCase(ctx, id, upd)
}

type fixture struct {
	svc     cases.Service
	repo    *faultyRepo
	usrRepo user.Repository
	hub     *live.Hub
	mailSvc *emailsvc.ConsoleServiceMock
	admin   user.User
	student user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger)

	hub := live.NewHub()
	db := inmemdb.Open(hub)
	usrRepo := inmemdb.NewUserRepository(db)
	repo := &faultyRepo{Repository: inmemdb.NewCaseRepository(db)}
	blobs, err := blobstore.NewFSStore(t.TempDir(), conf.Server.PublicURL)
	require.NoError(t, err)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	validate, _ := testutil.NewValidator()

	return &fixture{
		svc: cases.NewService(cases.Options{
			Repo:     repo,
			UserSvc:  user.NewService(usrRepo, hub),
			Blobs:    blobs,
			MailSvc:  mailSvc,
			Hub:      hub,
			Validate: validate,
			Logger:   logger,
		}),
		repo:    repo,
		usrRepo: usrRepo,
		hub:     hub,
		mailSvc: mailSvc,
		admin:   testutil.CreateUser(t, usrRepo, "Root", "root", "", "", user.RoleAdmin),
		student: testutil.CreateUser(t, usrRepo, "Alice Mbuyi", "alice", "alice@example.com", "", user.RoleStudent),
	}
}

func TestService_Assign(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name     string
		data     cases.NewCase
		actor    user.User
		wantFld  string
		wantBy   string
		wantCase bool
	}{
		{name: "blank title", data: cases.NewCase{Title: "  ", AssignedTo: f.student.ID}, actor: f.admin, wantFld: "title"},
		{name: "no assignee", data: cases.NewCase{Title: "Contract Review"}, actor: f.admin, wantFld: "assignedTo"},
		{name: "unknown assignee", data: cases.NewCase{Title: "Contract Review", AssignedTo: "ghost"}, actor: f.admin, wantFld: "assignedTo"},
		{name: "admin assignee", data: cases.NewCase{Title: "Contract Review", AssignedTo: f.admin.ID}, actor: f.admin, wantFld: "assignedTo"},
		{name: "ok", data: cases.NewCase{Title: " Contract Review ", Description: "NDA", AssignedTo: f.student.ID}, actor: f.admin, wantBy: f.admin.ID, wantCase: true},
		{name: "unknown actor", data: cases.NewCase{Title: "Contract Review", AssignedTo: f.student.ID}, wantBy: cases.DefaultCreatedBy, wantCase: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := f.repo.QueryCases(ctx, cases.CaseFilter{})
			require.NoError(t, err)

			res, err := f.svc.Assign(ctx, tt.data, tt.actor)
			after, qErr := f.repo.QueryCases(ctx, cases.CaseFilter{})
			require.NoError(t, qErr)

			if !tt.wantCase {
				require.Error(t, err)
				assert.Len(t, after, len(before))
				var vErrs validator.ValidationErrors
				var vErr *core.ValidationError
				switch {
				case errors.As(err, &vErrs):
					assert.Equal(t, tt.wantFld, vErrs[0].Field())
				case errors.As(err, &vErr):
					assert.Equal(t, tt.wantFld, vErr.Fields[0].Field)
				default:
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			require.NoError(t, err)
			require.Len(t, after, len(before)+1)
			c := res.Case
			assert.Equal(t, "Contract Review", c.Title)
			assert.Equal(t, cases.StatusOpen, c.Status)
			assert.Equal(t, 0, c.ProgressPercentage)
			assert.Equal(t, cases.DocumentNotUploaded, c.DocumentStatus)
			assert.Nil(t, c.DocumentURL)
			assert.Equal(t, f.student.ID, c.AssignedTo)
			assert.Equal(t, tt.wantBy, c.CreatedBy)
			assert.False(t, c.CreatedAt.IsZero())
			assert.Equal(t, "Alice Mbuyi", res.AssigneeName)
			assert.Equal(t, "Case assigned successfully: Contract Review → Alice Mbuyi", res.Message)
		})
	}

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "alice@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Contract Review")
	assert.Contains(t, sent[0].HTMLContent, "<strong>Contract Review</strong>")
}

func TestService_SaveProgress(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c1 := testutil.CreateCase(t, f.repo, "c1", "Contract Review", f.student)

	p, err := f.svc.SaveProgress(ctx, c1.ID, f.student, cases.ProgressUpdate{ProgressPercentage: 45, Notes: "started drafting"})
	require.NoError(t, err)
	assert.Equal(t, 45, p.ProgressPercentage)
	require.NotNil(t, p.Notes)
	assert.Equal(t, "started drafting", *p.Notes)
	assert.Equal(t, f.student.ID, p.UserID)

	history, err := f.svc.ListProgress(ctx, cases.ProgressFilter{CaseID: c1.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, p, history[0])

	got, err := f.svc.Get(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, got.ProgressPercentage)
	assert.False(t, got.UpdatedAt.Before(c1.UpdatedAt))

	// blank notes are stored as null
	p, err = f.svc.SaveProgress(ctx, c1.ID, f.student, cases.ProgressUpdate{ProgressPercentage: 50, Notes: "  "})
	require.NoError(t, err)
	assert.Nil(t, p.Notes)

	for _, pct := range []int{-1, 101} {
		_, err = f.svc.SaveProgress(ctx, c1.ID, f.student, cases.ProgressUpdate{ProgressPercentage: pct})
		var vErrs validator.ValidationErrors
		assert.True(t, errors.As(err, &vErrs), "percent %d", pct)
	}

	_, err = f.svc.SaveProgress(ctx, "nope", f.student, cases.ProgressUpdate{ProgressPercentage: 10})
	assert.Equal(t, cases.ErrNotFound, err)

	history, err = f.svc.ListProgress(ctx, cases.ProgressFilter{UserID: f.student.ID})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestService_Assign_storeFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name    string
		err     error
		wantMsg string
		denied  bool
	}{
		{name: "raw message", err: errors.New("pq: connection reset by peer"), wantMsg: "pq: connection reset by peer"},
		{name: "permission denied", err: errors.Wrap(core.ErrPermissionDenied, "inserting case"), wantMsg: core.ErrPermissionDenied.Error(), denied: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.repo.createErr = tt.err
			defer func() { f.repo.createErr = nil }()

			_, err := f.svc.Assign(ctx, cases.NewCase{Title: "Contract Review", AssignedTo: f.student.ID}, f.admin)
			var sErr *core.StoreError
			require.True(t, errors.As(err, &sErr), "got %v", err)
			assert.Equal(t, tt.wantMsg, sErr.Error())
			assert.Equal(t, tt.denied, errors.Is(err, core.ErrPermissionDenied))
		})
	}

	all, err := f.repo.QueryCases(ctx, cases.CaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.mailSvc.SentMessages())
}

func TestService_SaveProgress_caseUpdateFails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c1 := testutil.CreateCase(t, f.repo, "c1", "Contract Review", f.student)

	f.repo.updateErr = errors.New("write conflict")
	_, err := f.svc.SaveProgress(ctx, c1.ID, f.student, cases.ProgressUpdate{ProgressPercentage: 45, Notes: "started drafting"})
	require.Error(t, err)
	assert.Equal(t, "write conflict", err.Error())
	f.repo.updateErr = nil

	// the progress record stays
	history, err := f.svc.ListProgress(ctx, cases.ProgressFilter{CaseID: c1.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 45, history[0].ProgressPercentage)

	// the case is left behind
	got, err := f.svc.Get(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ProgressPercentage)

	repaired, err := f.svc.Reconcile(ctx, c1.ID)
	require.NoError(t, err)
	assert.True(t, repaired)

	got, err = f.svc.Get(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, got.ProgressPercentage)
}

func TestService_SaveProgress_withDocument(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c1 := testutil.CreateCase(t, f.repo, "c1", "Contract Review", f.student)

	doc := &cases.Document{Filename: "../brief.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF")}
	_, err := f.svc.SaveProgress(ctx, c1.ID, f.student, cases.ProgressUpdate{ProgressPercentage: 80, Document: doc})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, got.ProgressPercentage)
	assert.Equal(t, cases.DocumentUploaded, got.DocumentStatus)
	require.NotNil(t, got.DocumentURL)
	assert.True(t, strings.HasPrefix(*got.DocumentURL, "http://localhost:8000/files/case-documents/c1/"))
	assert.True(t, strings.HasSuffix(*got.DocumentURL, "-brief.pdf"))

	got, err = f.svc.MarkDocumentReviewed(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, cases.DocumentReviewed, got.DocumentStatus)
}

func TestService_AttachDocument(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c1 := testutil.CreateCase(t, f.repo, "c1", "Contract Review", f.student)

	_, err := f.svc.MarkDocumentReviewed(ctx, c1.ID)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))

	got, err := f.svc.AttachDocument(ctx, c1.ID, cases.Document{Filename: "notes.txt", Content: strings.NewReader("hi")})
	require.NoError(t, err)
	assert.Equal(t, cases.DocumentUploaded, got.DocumentStatus)
	assert.Equal(t, 0, got.ProgressPercentage)

	history, err := f.svc.ListProgress(ctx, cases.ProgressFilter{CaseID: c1.ID})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDocumentKey(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	assert.Equal(t, "case-documents/c1/1700000000123-brief.pdf", cases.DocumentKey("c1", "brief.pdf", ts))
	assert.Equal(t, "case-documents/c1/1700000000123-b.pdf", cases.DocumentKey("c1", `C:\docs\b.pdf`, ts))
}

func TestService_SetStatusAndQuery(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "", "", user.RoleStudent)
	c1 := testutil.CreateCase(t, f.repo, "c1", "Contract Review", f.student)
	time.Sleep(time.Millisecond)
	c2 := testutil.CreateCase(t, f.repo, "c2", "Lease Drafting", f.student)
	time.Sleep(time.Millisecond)
	c3 := testutil.CreateCase(t, f.repo, "c3", "Contract Renewal", bob)

	_, err := f.svc.SetStatus(ctx, c1.ID, cases.StatusUpdate{Status: "DONE"})
	assert.Error(t, err)
	closed, err := f.svc.SetStatus(ctx, c1.ID, cases.StatusUpdate{Status: cases.StatusClosed})
	require.NoError(t, err)
	assert.Equal(t, cases.StatusClosed, closed.Status)
	_, err = f.svc.SetStatus(ctx, "nope", cases.StatusUpdate{Status: cases.StatusClosed})
	assert.Equal(t, cases.ErrNotFound, err)

	ids := func(all []cases.Case) []string {
		res := make([]string, 0, len(all))
		for _, c := range all {
			res = append(res, c.ID)
		}
		return res
	}

	tests := []struct {
		name   string
		filter cases.CaseFilter
		want   []string
	}{
		{name: "all, newest first", filter: cases.CaseFilter{}, want: []string{c3.ID, c2.ID, c1.ID}},
		{name: "assigned to", filter: cases.CaseFilter{AssignedTo: f.student.ID}, want: []string{c2.ID, c1.ID}},
		{name: "status", filter: cases.CaseFilter{Status: cases.StatusOpen}, want: []string{c3.ID, c2.ID}},
		{name: "fuzzy search", filter: cases.CaseFilter{Search: "contrct"}, want: []string{c3.ID, c1.ID}},
		{name: "combined", filter: cases.CaseFilter{AssignedTo: f.student.ID, Search: "lease"}, want: []string{c2.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestService_Reconcile(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c1 := testutil.CreateCase(t, f.repo, "c1", "Contract Review", f.student)
	c2 := testutil.CreateCase(t, f.repo, "c2", "Lease Drafting", f.student)

	_, err := f.svc.SaveProgress(ctx, c1.ID, f.student, cases.ProgressUpdate{ProgressPercentage: 30})
	require.NoError(t, err)

	// a progress record whose case update never happened
	_, err = f.repo.CreateProgress(ctx, cases.Progress{ID: "p-lost", CaseID: c1.ID, UserID: f.student.ID, ProgressPercentage: 60})
	require.NoError(t, err)

	repaired, err := f.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	got, err := f.svc.Get(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.ProgressPercentage)

	ok, err := f.svc.Reconcile(ctx, c2.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	repaired, err = f.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}

func TestService_WatchCases(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	snapshots := f.svc.WatchCases(ctx, cases.CaseFilter{AssignedTo: f.student.ID})
	first := <-snapshots
	require.NoError(t, first.Err)
	assert.Empty(t, first.Items)

	_, err := f.svc.Assign(context.Background(), cases.NewCase{Title: "Contract Review", AssignedTo: f.student.ID}, f.admin)
	require.NoError(t, err)

	second := <-snapshots
	require.NoError(t, second.Err)
	assert.Len(t, second.Items, 1)

	cancel()
	for range snapshots {
	}
	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}
