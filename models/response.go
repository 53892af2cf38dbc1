package models

// IssueView is an issue with the reporter reference expanded for responses
type IssueView struct {
	Issue
	ReportedBy Reporter `json:"reportedBy"`
}

// IssueResponse wraps a single issue
type IssueResponse struct {
	Success bool      `json:"success"`
	Data    IssueView `json:"data"`
}

// IssueListResponse wraps a filtered, paginated list of issues
type IssueListResponse struct {
	Success     bool        `json:"success"`
	Count       int         `json:"count"`
	Total       int64       `json:"total"`
	TotalPages  int64       `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Data        []IssueView `json:"data"`
}

// NearbyResponse wraps a radius query result, nearest first
type NearbyResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Data    []IssueView `json:"data"`
}

// StatusCounts carries one counter per issue status; every status is always
// present, zero-filled
type StatusCounts struct {
	Pending    int64 `json:"pending"`
	Verified   int64 `json:"verified"`
	InProgress int64 `json:"inProgress"`
	Resolved   int64 `json:"resolved"`
	Rejected   int64 `json:"rejected"`
}

// GroupCount is one bucket of a $group aggregation
type GroupCount struct {
	ID    string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// IssueStats is the admin statistics report. ByCategory and ByPriority are
// sparse: values with no issues are omitted.
type IssueStats struct {
	Total      int64        `json:"total"`
	ByStatus   StatusCounts `json:"byStatus"`
	ByCategory []GroupCount `json:"byCategory"`
	ByPriority []GroupCount `json:"byPriority"`
}

// StatsResponse wraps the admin statistics report
type StatsResponse struct {
	Success bool       `json:"success"`
	Data    IssueStats `json:"data"`
}

// MessageResponse is the generic success/failure envelope
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AuthResponse wraps a signed token and the authenticated user's profile
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Data    User   `json:"data"`
}

// UserResponse wraps a user profile
type UserResponse struct {
	Success bool `json:"success"`
	Data    User `json:"data"`
}

// HealthCheckResponse returns the health check response struct
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
