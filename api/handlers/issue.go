package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/civicreport/civic-issue-api/api"
	"github.com/civicreport/civic-issue-api/config"
	"github.com/civicreport/civic-issue-api/databases"
	"github.com/civicreport/civic-issue-api/models"
	"github.com/civicreport/civic-issue-api/storage"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Issue exported for testing purposes
type Issue struct {
	DB             databases.IssueDatabase
	UDB            databases.UserDatabase
	Images         *storage.ImageStore
	SendgridAPIKey string
}

// CreateIssueHandler files a new issue from a multipart report form. The
// image is written to disk first; if the insert then fails the stored file
// is deleted again so no image can outlive a failed report.
func (i Issue) CreateIssueHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authorized", http.StatusUnauthorized, w, errors.New("missing identity"))
		return
	}

	if err := r.ParseMultipartForm(storage.MaxImageSize + 1<<20); err != nil {
		config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	category := r.FormValue("category")
	address := strings.TrimSpace(r.FormValue("address"))
	priority := r.FormValue("priority")

	if title == "" || len(title) > 100 {
		config.ErrorStatus("title must be between 1 and 100 characters", http.StatusBadRequest, w, errors.New("invalid title"))
		return
	}
	if description == "" || len(description) > 500 {
		config.ErrorStatus("description must be between 1 and 500 characters", http.StatusBadRequest, w, errors.New("invalid description"))
		return
	}
	if !models.ValidCategory(category) {
		config.ErrorStatus("please select a valid category", http.StatusBadRequest, w, fmt.Errorf("unknown category %q", category))
		return
	}
	if address == "" {
		config.ErrorStatus("please add an address", http.StatusBadRequest, w, errors.New("missing address"))
		return
	}
	if priority == "" {
		priority = models.PriorityMedium
	} else if !models.ValidPriority(priority) {
		config.ErrorStatus("please select a valid priority", http.StatusBadRequest, w, fmt.Errorf("unknown priority %q", priority))
		return
	}

	var coordinates []float64
	if err := json.Unmarshal([]byte(r.FormValue("coordinates")), &coordinates); err != nil {
		config.ErrorStatus("invalid coordinates format", http.StatusBadRequest, w, err)
		return
	}
	if !models.ValidCoordinates(coordinates) {
		config.ErrorStatus("please provide valid coordinates [longitude, latitude]", http.StatusBadRequest, w, errors.New("coordinates out of range"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		config.ErrorStatus("please upload an image", http.StatusBadRequest, w, err)
		return
	}
	defer file.Close()

	filename, err := i.Images.Save(file, header)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidImage) {
			config.ErrorStatus("invalid image upload", http.StatusBadRequest, w, err)
			return
		}
		config.ErrorStatus("failed to store image", http.StatusInternalServerError, w, err)
		return
	}

	now := time.Now()
	issue := models.Issue{
		ID:          primitive.NewObjectID(),
		Title:       title,
		Description: description,
		Category:    category,
		Location:    models.NewLocation(coordinates[0], coordinates[1]),
		Address:     address,
		Image:       filename,
		Status:      models.StatusPending,
		Priority:    priority,
		ReportedBy:  identity.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if _, err := i.DB.InsertOne(ctx, issue); err != nil {
		// compensate for the already-written image; a failed cleanup is
		// logged, not escalated
		if rmErr := i.Images.Remove(filename); rmErr != nil {
			zap.S().Warnw("failed to remove image after insert failure",
				"image", filename,
				"error", rmErr,
			)
		}
		config.ErrorStatus("failed to create issue", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(models.IssueResponse{Success: true, Data: i.issueView(r, issue)})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// IssuesHandler returns a filtered, paginated issue list. Citizens only ever
// see their own issues no matter what filter they send; admins see all.
func (i Issue) IssuesHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authorized", http.StatusUnauthorized, w, errors.New("missing identity"))
		return
	}

	page, err := positiveIntParam(r, "page", 1)
	if err != nil {
		config.ErrorStatus("invalid page parameter", http.StatusBadRequest, w, err)
		return
	}
	limit, err := positiveIntParam(r, "limit", defaultPageSize)
	if err != nil {
		config.ErrorStatus("invalid limit parameter", http.StatusBadRequest, w, err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}
	if category := r.URL.Query().Get("category"); category != "" {
		filter["category"] = category
	}
	if priority := r.URL.Query().Get("priority"); priority != "" {
		filter["priority"] = priority
	}
	if !identity.IsAdmin() {
		filter["reportedBy"] = identity.ID
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	total, err := i.DB.CountDocuments(ctx, filter)
	if err != nil {
		config.ErrorStatus("failed to count issues", http.StatusInternalServerError, w, err)
		return
	}

	limit64 := int64(limit)
	skip64 := int64((page - 1) * limit)
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(skip64).
		SetLimit(limit64)

	issues, err := i.DB.Find(ctx, filter, findOptions)
	if err != nil {
		config.ErrorStatus("failed to get issues", http.StatusInternalServerError, w, err)
		return
	}

	views := i.issueViews(r, issues)
	totalPages := (total + limit64 - 1) / limit64

	b, err := json.Marshal(models.IssueListResponse{
		Success:     true,
		Count:       len(views),
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
		Data:        views,
	})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// IssueByIDHandler returns a single issue. Existence is checked before
// authorization so a missing issue is always a 404 regardless of role.
func (i Issue) IssueByIDHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authorized", http.StatusUnauthorized, w, errors.New("missing identity"))
		return
	}

	issueID := mux.Vars(r)["id"]
	oid, err := primitive.ObjectIDFromHex(issueID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := i.DB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			config.ErrorStatus("issue not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to get issue by ID", http.StatusInternalServerError, w, err)
		return
	}

	if !api.CanAccessIssue(identity, issue) {
		config.ErrorStatus("not authorized to view this issue", http.StatusForbidden, w, errors.New("forbidden"))
		return
	}

	b, err := json.Marshal(models.IssueResponse{Success: true, Data: i.issueView(r, *issue)})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type statusUpdateRequest struct {
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AdminNotes string `json:"adminNotes"`
}

// UpdateIssueStatusHandler lets an admin change status, priority and notes.
// Any subset of fields may be sent; empty strings mean "no change", so notes
// can never be cleared back to empty through this endpoint (known
// limitation, kept for compatibility). resolvedAt is set on the first
// transition into Resolved and never overwritten; the transition graph is
// otherwise unconstrained.
func (i Issue) UpdateIssueStatusHandler(w http.ResponseWriter, r *http.Request) {
	issueID := mux.Vars(r)["id"]
	oid, err := primitive.ObjectIDFromHex(issueID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.Status != "" && !models.ValidStatus(req.Status) {
		config.ErrorStatus("please select a valid status", http.StatusBadRequest, w, fmt.Errorf("unknown status %q", req.Status))
		return
	}
	if req.Priority != "" && !models.ValidPriority(req.Priority) {
		config.ErrorStatus("please select a valid priority", http.StatusBadRequest, w, fmt.Errorf("unknown priority %q", req.Priority))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := i.DB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			config.ErrorStatus("issue not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to get issue by ID", http.StatusInternalServerError, w, err)
		return
	}

	now := time.Now()
	set := bson.M{"updatedAt": now}
	if req.Status != "" {
		set["status"] = req.Status
	}
	if req.Priority != "" {
		set["priority"] = req.Priority
	}
	if req.AdminNotes != "" {
		set["adminNotes"] = req.AdminNotes
	}

	newlyResolved := req.Status == models.StatusResolved && issue.ResolvedAt == nil
	if newlyResolved {
		set["resolvedAt"] = now
	}

	if err := i.DB.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set}); err != nil {
		config.ErrorStatus("failed to update issue", http.StatusInternalServerError, w, err)
		return
	}

	updated, err := i.DB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil {
		config.ErrorStatus("failed to get updated issue", http.StatusInternalServerError, w, err)
		return
	}

	if newlyResolved {
		i.notifyResolved(r, *updated)
	}

	b, err := json.Marshal(models.IssueResponse{Success: true, Data: i.issueView(r, *updated)})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DeleteIssueHandler removes an issue and its image. The image delete is
// best-effort: a missing file is fine and any other failure is surfaced in
// the logs without skipping the record delete.
func (i Issue) DeleteIssueHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := api.IdentityFromContext(r.Context())
	if !ok {
		config.ErrorStatus("not authorized", http.StatusUnauthorized, w, errors.New("missing identity"))
		return
	}

	issueID := mux.Vars(r)["id"]
	oid, err := primitive.ObjectIDFromHex(issueID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := i.DB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			config.ErrorStatus("issue not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to get issue by ID", http.StatusInternalServerError, w, err)
		return
	}

	if !api.CanAccessIssue(identity, issue) {
		config.ErrorStatus("not authorized to delete this issue", http.StatusForbidden, w, errors.New("forbidden"))
		return
	}

	if err := i.Images.Remove(issue.Image); err != nil {
		zap.S().Warnw("failed to remove issue image",
			"issue", issueID,
			"image", issue.Image,
			"error", err,
		)
	}

	if err := i.DB.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		config.ErrorStatus("failed to delete issue", http.StatusInternalServerError, w, err)
		return
	}

	b, _ := json.Marshal(models.MessageResponse{Success: true, Message: "issue deleted successfully"})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// NearbyIssuesHandler returns issues within the given distance (km) of a
// point, nearest first. The $near query is served by the 2dsphere index and
// deliberately crosses users so duplicate reports are visible to everyone.
func (i Issue) NearbyIssuesHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	longitude, err := parseCoordinate(vars["longitude"], -180, 180)
	if err != nil {
		config.ErrorStatus("invalid longitude", http.StatusBadRequest, w, err)
		return
	}
	latitude, err := parseCoordinate(vars["latitude"], -90, 90)
	if err != nil {
		config.ErrorStatus("invalid latitude", http.StatusBadRequest, w, err)
		return
	}
	distanceKm, err := strconv.ParseFloat(vars["distance"], 64)
	if err != nil || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		config.ErrorStatus("invalid distance", http.StatusBadRequest, w, fmt.Errorf("bad distance %q", vars["distance"]))
		return
	}

	filter := bson.M{
		"location": bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{longitude, latitude},
				},
				"$maxDistance": distanceKm * 1000, // km to meters
			},
		},
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issues, err := i.DB.Find(ctx, filter)
	if err != nil {
		config.ErrorStatus("failed to get nearby issues", http.StatusInternalServerError, w, err)
		return
	}

	views := i.issueViews(r, issues)
	b, err := json.Marshal(models.NearbyResponse{Success: true, Count: len(views), Data: views})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// IssueStatsHandler returns the admin dashboard aggregates. Status counts
// carry every status zero-filled; category and priority buckets are sparse.
func (i Issue) IssueStatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	total, err := i.DB.CountDocuments(ctx, bson.M{})
	if err != nil {
		config.ErrorStatus("failed to count issues", http.StatusInternalServerError, w, err)
		return
	}

	var byStatus models.StatusCounts
	for _, status := range models.Statuses {
		count, err := i.DB.CountDocuments(ctx, bson.M{"status": status})
		if err != nil {
			config.ErrorStatus("failed to count issues by status", http.StatusInternalServerError, w, err)
			return
		}
		switch status {
		case models.StatusPending:
			byStatus.Pending = count
		case models.StatusVerified:
			byStatus.Verified = count
		case models.StatusInProgress:
			byStatus.InProgress = count
		case models.StatusResolved:
			byStatus.Resolved = count
		case models.StatusRejected:
			byStatus.Rejected = count
		}
	}

	byCategory, err := i.DB.Aggregate(ctx, groupCountPipeline("$category"))
	if err != nil {
		config.ErrorStatus("failed to aggregate issues by category", http.StatusInternalServerError, w, err)
		return
	}
	byPriority, err := i.DB.Aggregate(ctx, groupCountPipeline("$priority"))
	if err != nil {
		config.ErrorStatus("failed to aggregate issues by priority", http.StatusInternalServerError, w, err)
		return
	}
	if byCategory == nil {
		byCategory = []models.GroupCount{}
	}
	if byPriority == nil {
		byPriority = []models.GroupCount{}
	}

	b, err := json.Marshal(models.StatsResponse{
		Success: true,
		Data: models.IssueStats{
			Total:      total,
			ByStatus:   byStatus,
			ByCategory: byCategory,
			ByPriority: byPriority,
		},
	})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func groupCountPipeline(field string) []bson.M {
	return []bson.M{
		{"$group": bson.M{
			"_id":   field,
			"count": bson.M{"$sum": 1},
		}},
	}
}

func positiveIntParam(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", name, err)
	}
	if value < 1 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, value)
	}
	return value, nil
}

func parseCoordinate(raw string, min, max float64) (float64, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < min || value > max {
		return 0, fmt.Errorf("coordinate %q out of range [%v, %v]", raw, min, max)
	}
	return value, nil
}

// issueView expands the reporter reference on a single issue
func (i Issue) issueView(r *http.Request, issue models.Issue) models.IssueView {
	views := i.issueViews(r, []models.Issue{issue})
	return views[0]
}

// issueViews expands reporter references for responses. A reporter that
// cannot be loaded degrades to a bare ID rather than failing the request.
func (i Issue) issueViews(r *http.Request, issues []models.Issue) []models.IssueView {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reporters := make(map[primitive.ObjectID]models.Reporter)
	views := make([]models.IssueView, 0, len(issues))
	for _, issue := range issues {
		reporter, ok := reporters[issue.ReportedBy]
		if !ok {
			reporter = models.Reporter{ID: issue.ReportedBy}
			if user, err := i.UDB.FindOne(ctx, bson.M{"_id": issue.ReportedBy}); err == nil {
				reporter.Name = user.Name
				reporter.Email = user.Email
				reporter.Phone = user.Phone
			}
			reporters[issue.ReportedBy] = reporter
		}
		views = append(views, models.IssueView{Issue: issue, ReportedBy: reporter})
	}
	return views
}

// notifyResolved emails the reporter that their issue was resolved. Fully
// best-effort: no key means no mail, and failures only get logged.
func (i Issue) notifyResolved(r *http.Request, issue models.Issue) {
	if i.SendgridAPIKey == "" {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := i.UDB.FindOne(ctx, bson.M{"_id": issue.ReportedBy})
	if err != nil {
		zap.S().Warnw("failed to load reporter for resolved notification",
			"issue", issue.ID.Hex(),
			"error", err,
		)
		return
	}

	from := mail.NewEmail("Civic Issue Reporting", "no-reply@civicreport.app")
	to := mail.NewEmail(user.Name, user.Email)
	subject := "Your reported issue has been resolved"
	plain := fmt.Sprintf("Good news %s, your report %q has been marked resolved.", user.Name, issue.Title)
	html := fmt.Sprintf("<p>Good news %s,</p><p>your report <strong>%s</strong> has been marked resolved.</p>", user.Name, issue.Title)
	msg := mail.NewSingleEmail(from, subject, to, plain, html)

	client := sendgrid.NewSendClient(i.SendgridAPIKey)
	if _, err := client.Send(msg); err != nil {
		zap.S().Warnw("failed to send resolved notification",
			"issue", issue.ID.Hex(),
			"error", err,
		)
	}
}
