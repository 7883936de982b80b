package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/datashare/internal/services"
	"github.com/localnerve/datashare/internal/utils"
)

// UserHandler handles the caller's relationship views
type UserHandler struct {
	Projects *services.ProjectService
}

// OwnedProjects handles GET /api/user/owned-projects
// @Summary List owned projects
// @Description Projects the caller owns or collaborates on
// @Tags User
// @Produce json
// @Success 200 {array} models.Project
// @Security CookieAuth
// @Router /user/owned-projects [get]
func (h *UserHandler) OwnedProjects(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	projects, err := h.Projects.OwnedProjects(c.UserContext(), userID)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, projects, fiber.StatusOK)
}

// SharedProjects handles GET /api/user/shared-projects-to-user
// @Summary List shared projects
// @Description Projects the caller was granted access to through accepted proposals
// @Tags User
// @Produce json
// @Success 200 {array} models.Project
// @Security CookieAuth
// @Router /user/shared-projects-to-user [get]
func (h *UserHandler) SharedProjects(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	projects, err := h.Projects.SharedProjects(c.UserContext(), userID)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, projects, fiber.StatusOK)
}
