package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Handlers groups the route handlers mounted under /api.
type Handlers struct {
	Project  *ProjectHandler
	Proposal *ProposalHandler
	User     *UserHandler
	Health   *HealthHandler
}

// RegisterRoutes mounts every route on api. auth guards all routes except
// health.
func RegisterRoutes(api fiber.Router, auth fiber.Handler, h Handlers) {
	if h.Health != nil {
		api.Get("/health", h.Health.Health)
	}

	project := api.Group("/project", auth)
	project.Post("/create", h.Project.CreateProject)
	project.Post("/detail", h.Project.ProjectDetail)
	project.Post("/add-dataset", h.Project.AddDataset)
	project.Post("/live-preview", h.Project.LivePreview)
	project.Post("/preview-dataset", h.Project.PreviewDataset)
	project.Post("/remove-dataset", h.Project.RemoveDataset)
	project.Post("/purge-dataset", h.Project.PurgeDataset)

	proposal := api.Group("/proposal", auth)
	proposal.Post("/create", h.Proposal.CreateProposal)
	proposal.Post("/update", h.Proposal.UpdateProposal)
	proposal.Post("/evaluate", h.Proposal.EvaluateProposal)
	proposal.Post("/detail", h.Proposal.ProposalDetail)
	proposal.Get("/mine", h.Proposal.MyProposals)
	proposal.Post("/project", h.Proposal.ProjectProposals)

	user := api.Group("/user", auth)
	user.Get("/owned-projects", h.User.OwnedProjects)
	user.Get("/shared-projects-to-user", h.User.SharedProjects)
}
