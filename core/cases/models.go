package cases

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clinic/core"
)

// Case statuses
const (
	StatusOpen     = "OPEN"
	StatusAssigned = "ASSIGNED"
	StatusClosed   = "CLOSED"
)

// Document statuses
const (
	DocumentNotUploaded = "NOT_UPLOADED"
	DocumentUploaded    = "UPLOADED"
	DocumentReviewed    = "REVIEWED"
)

// DefaultCreatedBy is recorded as the creator of cases assigned by an unidentified admin.
const DefaultCreatedBy = "admin-1"

var (
	Statuses         = []string{StatusOpen, StatusAssigned, StatusClosed}
	DocumentStatuses = []string{DocumentNotUploaded, DocumentUploaded, DocumentReviewed}
)

type Case struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Status             string    `json:"status"`
	AssignedTo         string    `json:"assignedTo"`
	CreatedBy          string    `json:"createdBy"`
	ProgressPercentage int       `json:"progressPercentage"`
	DocumentStatus     string    `json:"documentStatus"`
	DocumentURL        *string   `json:"documentUrl,omitempty"`
	CreatedAt          time.Time `json:"createdAt"` // UTC
	UpdatedAt          time.Time `json:"updatedAt"` // UTC
}

func (c *Case) IsActive() bool {
	return c.Status == StatusOpen || c.Status == StatusAssigned
}

// Progress is an immutable snapshot of a case completion.
type Progress struct {
	ID                 string    `json:"id"`
	CaseID             string    `json:"caseId"`
	UserID             string    `json:"userId"`
	ProgressPercentage int       `json:"progressPercentage"`
	Notes              *string   `json:"notes"`
	CreatedAt          time.Time `json:"createdAt"` // UTC
}

// NewCase contains information needed to assign a new Case.
type NewCase struct {
	Title       string `json:"title" validate:"notblank,max=255"`
	Description string `json:"description"`
	AssignedTo  string `json:"assignedTo" validate:"notblank"`
}

func (nc *NewCase) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.AssignedTo = core.CleanString(nc.AssignedTo)
	return validate.Struct(nc)
}

type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=OPEN ASSIGNED CLOSED"`
}

func (su *StatusUpdate) Validate(validate *validator.Validate) error {
	su.Status = core.CleanString(su.Status)
	return validate.Struct(su)
}

// Document is an uploaded file.
type Document struct {
	Filename    string    `json:"filename" validate:"notblank"`
	ContentType string    `json:"contentType"`
	Content     io.Reader `json:"-" validate:"required"`
}

type ProgressUpdate struct {
	ProgressPercentage int       `json:"progressPercentage" form:"progressPercentage" validate:"min=0,max=100"`
	Notes              string    `json:"notes" form:"notes"`
	Document           *Document `json:"-" form:"-"`
}

func (pu *ProgressUpdate) Validate(validate *validator.Validate) error {
	pu.Notes = core.CleanString(pu.Notes)
	return validate.Struct(pu)
}

// Update sets the non-nil fields of a Case. UpdatedAt is always touched.
type Update struct {
	Status             *string
	ProgressPercentage *int
	DocumentStatus     *string
	DocumentURL        *string
}

type CaseFilter struct {
	AssignedTo string `query:"assigned_to"`
	Status     string `query:"status"`
	Search     string `query:"search"`
}

func (cf *CaseFilter) Clean() {
	cf.AssignedTo = core.CleanString(cf.AssignedTo)
	cf.Status = core.CleanString(cf.Status)
	cf.Search = core.CleanString(cf.Search)
}

type ProgressFilter struct {
	CaseID string `query:"case_id"`
	UserID string `query:"user_id"`
}

func (pf *ProgressFilter) Clean() {
	pf.CaseID = core.CleanString(pf.CaseID)
	pf.UserID = core.CleanString(pf.UserID)
}

// Assignment is the outcome of a successful case assignment.
type Assignment struct {
	Case         Case   `json:"case"`
	AssigneeName string `json:"assigneeName"`
	Message      string `json:"message"`
}
