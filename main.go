package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/civicreport/civic-issue-api/api"
	"github.com/civicreport/civic-issue-api/api/handlers"
	"github.com/civicreport/civic-issue-api/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil {
		zap.S().With(err).Fatal("failed to initialize")
	}

	port := a.Config.Port
	if port == "" {
		port = "5000"
	}
	zap.S().Infow("civic-issue-api is up and running",
		"port", port,
	)
	// CORS wraps the router itself so preflight requests are answered even
	// for routes registered under a single method
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%v", port), api.CORS(a.Router)))
}
