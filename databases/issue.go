package databases

// go generate: mockery --name IssueDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/civicreport/civic-issue-api/models"
)

const issueName = "issues"

// IssueDatabase contains the methods to use with the issue database
type IssueDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Issue, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Issue, error)
	InsertOne(ctx context.Context, issue models.Issue, opts ...*options.InsertOneOptions) (interface{}, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) error
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) error
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Aggregate(ctx context.Context, pipeline interface{}) ([]models.GroupCount, error)
	EnsureIndexes(ctx context.Context) error
}

type issueDatabase struct {
	db DatabaseHelper
}

// NewIssueDatabase initializes a new instance of issue database with the
// provided db connection
func NewIssueDatabase(db DatabaseHelper) IssueDatabase {
	return &issueDatabase{
		db: db,
	}
}

func (c *issueDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Issue, error) {
	issue := &models.Issue{}
	err := c.db.Collection(issueName).FindOne(ctx, filter, opts...).Decode(issue)
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (c *issueDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Issue, error) {
	var issues []models.Issue
	curr, err := c.db.Collection(issueName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &issues)
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (c *issueDatabase) InsertOne(ctx context.Context, issue models.Issue, opts ...*options.InsertOneOptions) (interface{}, error) {
	return c.db.Collection(issueName).InsertOne(ctx, issue, opts...)
}

func (c *issueDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) error {
	return c.db.Collection(issueName).UpdateOne(ctx, filter, update, opts...)
}

func (c *issueDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) error {
	return c.db.Collection(issueName).DeleteOne(ctx, filter, opts...)
}

func (c *issueDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return c.db.Collection(issueName).CountDocuments(ctx, filter, opts...)
}

func (c *issueDatabase) Aggregate(ctx context.Context, pipeline interface{}) ([]models.GroupCount, error) {
	var buckets []models.GroupCount
	curr, err := c.db.Collection(issueName).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &buckets)
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// EnsureIndexes creates the 2dsphere index that backs $near queries on the
// issue location
func (c *issueDatabase) EnsureIndexes(ctx context.Context) error {
	_, err := c.db.Collection(issueName).CreateIndex(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "location", Value: "2dsphere"}},
	})
	return err
}
