package mongodb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/cases"
)

type caseDoc struct {
	ID                 string    `bson:"_id"`
	Title              string    `bson:"title"`
	Description        string    `bson:"description"`
	Status             string    `bson:"status"`
	AssignedTo         string    `bson:"assignedTo"`
	CreatedBy          string    `bson:"createdBy"`
	ProgressPercentage int       `bson:"progressPercentage"`
	DocumentStatus     string    `bson:"documentStatus"`
	DocumentURL        *string   `bson:"documentUrl,omitempty"`
	CreatedAt          time.Time `bson:"createdAt"`
	UpdatedAt          time.Time `bson:"updatedAt"`
}

func (doc caseDoc) toCase() cases.Case {
	c := cases.Case(doc)
	c.CreatedAt, c.UpdatedAt = doc.CreatedAt.UTC(), doc.UpdatedAt.UTC()
	return c
}

type progressDoc struct {
	ID                 string    `bson:"_id"`
	CaseID             string    `bson:"caseId"`
	UserID             string    `bson:"userId"`
	ProgressPercentage int       `bson:"progressPercentage"`
	Notes              *string   `bson:"notes"`
	CreatedAt          time.Time `bson:"createdAt"`
	// Seq orders the records saved within the same millisecond, which createdAt cannot.
	Seq int64 `bson:"seq"`
}

func newProgressDoc(p cases.Progress, seq int64) progressDoc {
	return progressDoc{
		ID:                 p.ID,
		CaseID:             p.CaseID,
		UserID:             p.UserID,
		ProgressPercentage: p.ProgressPercentage,
		Notes:              p.Notes,
		CreatedAt:          p.CreatedAt,
		Seq:                seq,
	}
}

func (doc progressDoc) toProgress() cases.Progress {
	return cases.Progress{
		ID:                 doc.ID,
		CaseID:             doc.CaseID,
		UserID:             doc.UserID,
		ProgressPercentage: doc.ProgressPercentage,
		Notes:              doc.Notes,
		CreatedAt:          doc.CreatedAt.UTC(),
	}
}

var lastSeq int64

// nextSeq returns a nanosecond timestamp, strictly increasing within the process.
func nextSeq() int64 {
	for {
		last := atomic.LoadInt64(&lastSeq)
		seq := time.Now().UnixNano()
		if seq <= last {
			seq = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastSeq, last, seq) {
			return seq
		}
	}
}

type caseRepository struct {
	db *DB
}

func NewCaseRepository(db *DB) cases.Repository {
	return &caseRepository{db: db}
}

func (repo *caseRepository) CreateCase(ctx context.Context, c cases.Case) (cases.Case, error) {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	if _, err := repo.db.cases.InsertOne(ctx, caseDoc(c)); err != nil {
		return cases.Case{}, errors.Wrap(mapError(err), "inserting case")
	}
	repo.db.notify(core.CollectionCases)
	return c, nil
}

func (repo *caseRepository) GetCase(ctx context.Context, id string) (cases.Case, error) {
	var doc caseDoc
	if err := repo.db.cases.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return cases.Case{}, cases.ErrNotFound
		}
		return cases.Case{}, errors.Wrap(mapError(err), "finding case")
	}
	return doc.toCase(), nil
}

func (repo *caseRepository) QueryCases(ctx context.Context, filter cases.CaseFilter) ([]cases.Case, error) {
	query := bson.M{}
	if filter.AssignedTo != "" {
		query["assignedTo"] = filter.AssignedTo
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})

	cur, err := repo.db.cases.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(mapError(err), "finding cases")
	}
	var docs []caseDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(mapError(err), "decoding cases")
	}
	all := make([]cases.Case, 0, len(docs))
	for _, doc := range docs {
		all = append(all, doc.toCase())
	}
	return all, nil
}

func (repo *caseRepository) UpdateCase(ctx context.Context, id string, upd cases.Update) (cases.Case, error) {
	// only save set fields
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.ProgressPercentage != nil {
		set["progressPercentage"] = *upd.ProgressPercentage
	}
	if upd.DocumentStatus != nil {
		set["documentStatus"] = *upd.DocumentStatus
	}
	if upd.DocumentURL != nil {
		set["documentUrl"] = *upd.DocumentURL
	}

	var doc caseDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := repo.db.cases.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return cases.Case{}, cases.ErrNotFound
		}
		return cases.Case{}, errors.Wrap(mapError(err), "updating case")
	}
	repo.db.notify(core.CollectionCases)
	return doc.toCase(), nil
}

func (repo *caseRepository) CreateProgress(ctx context.Context, p cases.Progress) (cases.Progress, error) {
	p.CreatedAt = time.Now().UTC()

	if _, err := repo.db.progress.InsertOne(ctx, newProgressDoc(p, nextSeq())); err != nil {
		return cases.Progress{}, errors.Wrap(mapError(err), "inserting progress")
	}
	repo.db.notify(core.CollectionProgress)
	return p, nil
}

func (repo *caseRepository) QueryProgress(ctx context.Context, filter cases.ProgressFilter) ([]cases.Progress, error) {
	query := bson.M{}
	if filter.CaseID != "" {
		query["caseId"] = filter.CaseID
	}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}, {Key: "createdAt", Value: -1}})

	cur, err := repo.db.progress.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(mapError(err), "finding progress")
	}
	var docs []progressDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(mapError(err), "decoding progress")
	}
	history := make([]cases.Progress, 0, len(docs))
	for _, doc := range docs {
		history = append(history, doc.toProgress())
	}
	return history, nil
}
