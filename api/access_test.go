package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/civicreport/civic-issue-api/api"
	"github.com/civicreport/civic-issue-api/models"
)

func TestCanAccessIssue(t *testing.T) {
	owner := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	issue := &models.Issue{ReportedBy: owner}

	tests := []struct {
		name     string
		identity api.Identity
		expected bool
	}{
		{"reporter can access", api.Identity{ID: owner, Role: models.RoleCitizen}, true},
		{"other citizen cannot", api.Identity{ID: stranger, Role: models.RoleCitizen}, false},
		{"admin can access any", api.Identity{ID: stranger, Role: models.RoleAdmin}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, api.CanAccessIssue(tt.identity, issue))
		})
	}
}
