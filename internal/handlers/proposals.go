// proposals.go
//
// A research dataset access and desensitization service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of datashare.
// datashare is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// datashare is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with datashare.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/services"
	"github.com/localnerve/datashare/internal/types"
	"github.com/localnerve/datashare/internal/utils"
)

// ProposalHandler handles proposal routes
type ProposalHandler struct {
	Proposals *services.ProposalService
}

// CreateProposal handles POST /api/proposal/create
// @Summary Submit a proposal
// @Description Request access to a project. Applicants are named by email.
// @Tags Proposal
// @Accept json
// @Produce json
// @Param body body ProposalRequest true "Proposal"
// @Success 201 {object} services.ProposalResult
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposal/create [post]
func (h *ProposalHandler) CreateProposal(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body ProposalRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	result, err := h.Proposals.Create(c.UserContext(), userID, body.input())
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, result, fiber.StatusCreated)
}

// UpdateProposal handles POST /api/proposal/update
// @Summary Amend a proposal
// @Description Overwrite the text, benefits and applicants of a proposal awaiting review
// @Tags Proposal
// @Accept json
// @Produce json
// @Param body body ProposalRequest true "Proposal"
// @Success 200 {object} services.ProposalResult
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposal/update [post]
func (h *ProposalHandler) UpdateProposal(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body ProposalRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	result, err := h.Proposals.Amend(c.UserContext(), userID, body.ProposalID, body.input())
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, result, fiber.StatusOK)
}

// EvaluateProposal handles POST /api/proposal/evaluate
// @Summary Evaluate a proposal
// @Description Accept or reject a proposal. Accepting grants the applicator and applicants access to the project.
// @Tags Proposal
// @Accept json
// @Produce json
// @Param body body EvaluateRequest true "Verdict"
// @Success 200 {object} models.Proposal
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposal/evaluate [post]
func (h *ProposalHandler) EvaluateProposal(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body EvaluateRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	verdict, err := models.ParseVerdict(body.Verified)
	if err != nil {
		return utils.ErrorFromService(c, types.NewValidationError("proposal.validation.verdict",
			"verified must be accept or reject, got %q", body.Verified))
	}

	proposal, err := h.Proposals.Evaluate(c.UserContext(), userID, body.ProposalID, verdict, body.ProposalReviewText)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, proposal, fiber.StatusOK)
}

// ProposalDetail handles POST /api/proposal/detail
// @Summary Get a proposal
// @Tags Proposal
// @Accept json
// @Produce json
// @Param body body ProposalIDRequest true "Proposal id"
// @Success 200 {object} models.Proposal
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposal/detail [post]
func (h *ProposalHandler) ProposalDetail(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body ProposalIDRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	proposal, err := h.Proposals.Get(c.UserContext(), userID, body.ProposalID)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, proposal, fiber.StatusOK)
}

// MyProposals handles GET /api/proposal/mine
// @Summary List the caller's proposals
// @Description Proposals the caller authored or is named in
// @Tags Proposal
// @Produce json
// @Success 200 {array} models.Proposal
// @Security CookieAuth
// @Router /proposal/mine [get]
func (h *ProposalHandler) MyProposals(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	proposals, err := h.Proposals.ListForUser(c.UserContext(), userID)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, proposals, fiber.StatusOK)
}

// ProjectProposals handles POST /api/proposal/project
// @Summary List a project's proposals
// @Description Proposals submitted against a project. Owner only.
// @Tags Proposal
// @Accept json
// @Produce json
// @Param body body ProjectRequest true "Project id"
// @Success 200 {array} models.Proposal
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /proposal/project [post]
func (h *ProposalHandler) ProjectProposals(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body ProjectRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	proposals, err := h.Proposals.ListForProject(c.UserContext(), userID, body.ProjectID)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, proposals, fiber.StatusOK)
}
