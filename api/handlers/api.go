package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/civicreport/civic-issue-api/api"
	"github.com/civicreport/civic-issue-api/api/scheduler"
	"github.com/civicreport/civic-issue-api/config"
	"github.com/civicreport/civic-issue-api/databases"
	"github.com/civicreport/civic-issue-api/models"
	"github.com/civicreport/civic-issue-api/storage"
)

// issues a single user may file per day before the limiter kicks in
const dailyIssueLimit = 5

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Images    *storage.ImageStore
	dbHelper  databases.DatabaseHelper
	scheduler *scheduler.Scheduler
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	m := api.NewMiddleware(&a.Config, databases.NewUserDatabase(a.dbHelper))
	limiter := api.NewRateLimiter(&a.Config, dailyIssueLimit, 24*time.Hour)

	r := mux.NewRouter()

	issue := Issue{
		DB:             databases.NewIssueDatabase(a.dbHelper),
		UDB:            databases.NewUserDatabase(a.dbHelper),
		Images:         a.Images,
		SendgridAPIKey: a.Config.SendgridAPIKey,
	}
	auth := Auth{UDB: databases.NewUserDatabase(a.dbHelper), Secret: []byte(a.Config.JWTSecret)}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)
	r.HandleFunc("/", indexHandler).Methods("GET")

	apiCreate := r.PathPrefix("/api").Subrouter()

	apiCreate.Handle("/auth/register", http.HandlerFunc(auth.RegisterHandler)).Methods("POST")
	apiCreate.Handle("/auth/login", http.HandlerFunc(auth.LoginHandler)).Methods("POST")
	apiCreate.Handle("/auth/me", m.Authenticate(http.HandlerFunc(auth.MeHandler))).Methods("GET")

	apiCreate.Handle("/issues", m.Authenticate(limiter.Limit(http.HandlerFunc(issue.CreateIssueHandler)))).Methods("POST")
	apiCreate.Handle("/issues", m.Authenticate(http.HandlerFunc(issue.IssuesHandler))).Methods("GET")
	apiCreate.Handle("/issues/nearby/{longitude}/{latitude}/{distance}", m.Authenticate(http.HandlerFunc(issue.NearbyIssuesHandler))).Methods("GET")

	// admin routes must be registered before /issues/{id} so "admin" is not
	// swallowed as an id
	apiCreate.Handle("/issues/admin/stats", m.Authenticate(api.RequireAdmin(http.HandlerFunc(issue.IssueStatsHandler)))).Methods("GET")
	apiCreate.Handle("/issues/{id}/status", m.Authenticate(api.RequireAdmin(http.HandlerFunc(issue.UpdateIssueStatusHandler)))).Methods("PUT")

	apiCreate.Handle("/issues/{id}", m.Authenticate(http.HandlerFunc(issue.IssueByIDHandler))).Methods("GET")
	apiCreate.Handle("/issues/{id}", m.Authenticate(http.HandlerFunc(issue.DeleteIssueHandler))).Methods("DELETE")

	// stored images are public content addressable by filename
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(a.Config.UploadDir))))

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("civic-issue-api has connected to the database")

	indexCtx, cancel := api.WithQueryTimeout(nil)
	defer cancel()
	idb := databases.NewIssueDatabase(a.dbHelper)
	if err := idb.EnsureIndexes(indexCtx); err != nil {
		zap.S().Warnw("failed to ensure issue indexes", "error", err)
	}
	if err := databases.NewUserDatabase(a.dbHelper).EnsureIndexes(indexCtx); err != nil {
		zap.S().Warnw("failed to ensure user indexes", "error", err)
	}

	a.Images, err = storage.NewImageStore(&a.Config)
	if err != nil {
		zap.S().With(err).Error("failed to create image store")
		return err
	}

	a.scheduler = scheduler.New(idb, a.Images)
	a.scheduler.Start()

	// initialize api router
	a.initializeRoutes()
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}

func indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(map[string]interface{}{
		"success": true,
		"message": "Civic Issue Reporting API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"auth":   "/api/auth",
			"issues": "/api/issues",
		},
	})
	w.Write(b)
}
