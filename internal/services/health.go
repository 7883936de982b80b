package services

import (
	"context"
	"fmt"

	"github.com/localnerve/datashare/internal/config"
	"github.com/localnerve/datashare/internal/storage"
	"github.com/localnerve/datashare/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Authorizer   string            `json:"authorizer"`
	Artifacts    string            `json:"artifacts"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(component, message string, err error) {
	r.Status = "unhealthy"
	r.Details[component+"_error"] = err.Error()
	if r.ErrorMessage == "" {
		r.ErrorMessage = fmt.Sprintf("%s: %v", message, err)
	} else {
		r.ErrorMessage += fmt.Sprintf("; %s: %v", message, err)
	}
}

// HealthCheck performs a comprehensive health check of the service
func HealthCheck(ctx context.Context, cfg *config.Config, db *gorm.DB, store storage.Store, log *zap.Logger) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Database = "error"
		result.fail("database", "Database connection error", err)
		log.Warn("health check failed - database connection", zap.Error(err))
	} else if err := sqlDB.PingContext(ctx); err != nil {
		result.Database = "unreachable"
		result.fail("database_ping", "Database ping failed", err)
		log.Warn("health check failed - database ping", zap.Error(err))
	} else {
		result.Database = "ok"
		result.Details["database_type"] = cfg.DBType
		result.Details["database_name"] = cfg.DBDatabase
	}

	// Check Authorizer connectivity; bearer tokens are verified locally
	if cfg.AuthMode == config.AuthModeAuthorizer {
		if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
			result.Authorizer = "unreachable"
			result.fail("authorizer", "Authorizer ping failed", err)
			log.Warn("health check failed - authorizer ping", zap.Error(err))
		} else {
			result.Authorizer = "ok"
			result.Details["authorizer_url"] = cfg.AuthzURL
		}
	} else {
		result.Authorizer = "skipped"
	}

	// Check the artifact store with a write/read/delete round trip
	if err := storage.Probe(ctx, store); err != nil {
		result.Artifacts = "error"
		result.fail("artifacts", "Artifact store probe failed", err)
		log.Warn("health check failed - artifact store", zap.Error(err))
	} else {
		result.Artifacts = "ok"
		result.Details["artifact_backend"] = cfg.ArtifactBackend
	}

	if result.Status == "healthy" {
		log.Debug("health check passed - all systems operational")
	}

	return result
}
