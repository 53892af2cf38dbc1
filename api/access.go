package api

import "github.com/civicreport/civic-issue-api/models"

// CanAccessIssue is the ownership-or-admin check used by the detail and
// delete operations. Callers must confirm the issue exists first so a
// missing issue always surfaces as not-found, never forbidden.
func CanAccessIssue(identity Identity, issue *models.Issue) bool {
	return identity.IsAdmin() || issue.ReportedBy == identity.ID
}
