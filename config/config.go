package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Config holds the project config values, read once from the environment at
// process start and passed to the components that need them
type Config struct {
	URL            string
	DatabaseName   string
	Port           string
	Env            string
	JWTSecret      string
	UploadDir      string
	RedisAddress   string
	RedisPassword  string
	SendgridAPIKey string
}

// New sets up all config related services
func New() *Config {

	//setup zap logger and replace default logger
	env := os.Getenv("ENV")
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}

	return &Config{
		URL:            os.Getenv("DB_URI"),
		DatabaseName:   os.Getenv("DB_NAME"),
		Port:           os.Getenv("PORT"),
		Env:            env,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		UploadDir:      uploadDir,
		RedisAddress:   os.Getenv("REDIS_ADDRESS"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		SendgridAPIKey: os.Getenv("SENDGRID_API_KEY"),
	}
}

func setLogger(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	default:
		return zap.NewExample(), nil
	}
}

// ErrorStatus is a useful function that will log, write http headers and body
// for a given message, status code and err. Every failure response carries
// the same envelope so callers never infer outcome from status code alone.
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	body, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"message": fmt.Sprintf("%s: %v", message, err),
	})
	w.Write(body)
}
