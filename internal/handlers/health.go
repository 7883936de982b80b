package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/datashare/internal/config"
	"github.com/localnerve/datashare/internal/services"
	"github.com/localnerve/datashare/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler reports service health
type HealthHandler struct {
	Config *config.Config
	DB     *gorm.DB
	Store  storage.Store
	Log    *zap.Logger
}

// Health handles GET /api/health
// @Summary Service health
// @Description Database, identity provider and artifact store checks
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	result := services.HealthCheck(c.UserContext(), h.Config, h.DB, h.Store, h.Log)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
