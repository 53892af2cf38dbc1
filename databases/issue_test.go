package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/civicreport/civic-issue-api/databases"
	"github.com/civicreport/civic-issue-api/databases/mocks"
	"github.com/civicreport/civic-issue-api/models"
)

func TestIssueDatabase_FindOne(t *testing.T) {

	// define variables for interfaces
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperErr databases.SingleResultHelper
	var srHelperCorrect databases.SingleResultHelper

	// set interfaces implementation to mocked structures
	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperErr = &mocks.SingleResultHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	srHelperErr.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(errors.New("mocked-error"))

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.Issue)
		arg.Title = "mocked-issue"
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"error": true}).
		Return(srHelperErr)

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"error": false}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "issues").Return(collectionHelper)

	issueDba := databases.NewIssueDatabase(dbHelper)

	issue, err := issueDba.FindOne(context.Background(), bson.M{"error": true})

	assert.Empty(t, issue)
	assert.EqualError(t, err, "mocked-error")

	issue, err = issueDba.FindOne(context.Background(), bson.M{"error": false})

	assert.NoError(t, err)
	assert.Equal(t, "mocked-issue", issue.Title)
}

func TestIssueDatabase_Find(t *testing.T) {

	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursorHelper := &mocks.CursorHelper{}

	cursorHelper.
		On("All", context.Background(), mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Issue)
		*arg = []models.Issue{{Title: "first"}, {Title: "second"}}
	})
	cursorHelper.On("Close", context.Background()).Return(nil)

	collectionHelper.
		On("Find", context.Background(), bson.M{}).
		Return(cursorHelper, nil)

	dbHelper.On("Collection", "issues").Return(collectionHelper)

	issueDba := databases.NewIssueDatabase(dbHelper)

	issues, err := issueDba.Find(context.Background(), bson.M{})

	assert.NoError(t, err)
	assert.Len(t, issues, 2)
	assert.Equal(t, "first", issues[0].Title)
}

func TestIssueDatabase_FindError(t *testing.T) {

	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.
		On("Find", context.Background(), bson.M{}).
		Return(nil, errors.New("mocked-error"))

	dbHelper.On("Collection", "issues").Return(collectionHelper)

	issueDba := databases.NewIssueDatabase(dbHelper)

	issues, err := issueDba.Find(context.Background(), bson.M{})

	assert.Nil(t, issues)
	assert.EqualError(t, err, "mocked-error")
}

func TestIssueDatabase_CountDocuments(t *testing.T) {

	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.
		On("CountDocuments", context.Background(), bson.M{"status": "Pending"}).
		Return(int64(3), nil)

	dbHelper.On("Collection", "issues").Return(collectionHelper)

	issueDba := databases.NewIssueDatabase(dbHelper)

	count, err := issueDba.CountDocuments(context.Background(), bson.M{"status": "Pending"})

	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestIssueDatabase_Aggregate(t *testing.T) {

	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursorHelper := &mocks.CursorHelper{}

	cursorHelper.
		On("All", context.Background(), mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.GroupCount)
		*arg = []models.GroupCount{{ID: "Pothole", Count: 2}}
	})
	cursorHelper.On("Close", context.Background()).Return(nil)

	collectionHelper.
		On("Aggregate", context.Background(), mock.Anything).
		Return(cursorHelper, nil)

	dbHelper.On("Collection", "issues").Return(collectionHelper)

	issueDba := databases.NewIssueDatabase(dbHelper)

	buckets, err := issueDba.Aggregate(context.Background(), []bson.M{})

	assert.NoError(t, err)
	assert.Equal(t, []models.GroupCount{{ID: "Pothole", Count: 2}}, buckets)
}

func TestIssueDatabase_DeleteOne(t *testing.T) {

	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.
		On("DeleteOne", context.Background(), bson.M{"_id": "x"}).
		Return(nil)

	dbHelper.On("Collection", "issues").Return(collectionHelper)

	issueDba := databases.NewIssueDatabase(dbHelper)

	err := issueDba.DeleteOne(context.Background(), bson.M{"_id": "x"})

	assert.NoError(t, err)
}
