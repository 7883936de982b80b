// projects.go
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
	"github.com/localnerve/datashare/internal/services"
	"github.com/localnerve/datashare/internal/utils"
)

// ProjectHandler handles project and dataset routes
type ProjectHandler struct {
	Projects       *services.ProjectService
	Datasets       *services.DatasetService
	MaxUploadBytes int
}

// CreateProject handles POST /api/project/create
// @Summary Create a project
// @Description Register a project owned by the caller, with tags and collaborators given by email
// @Tags Project
// @Accept json
// @Produce json
// @Param body body CreateProjectRequest true "Project"
// @Success 201 {object} services.CreateProjectResult
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /project/create [post]
func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body CreateProjectRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	result, err := h.Projects.Create(c.UserContext(), userID, services.CreateProjectInput{
		Name:          body.Name,
		Description:   body.Description,
		Abstract:      body.Abstract,
		IsPublic:      body.IsPublic,
		Tags:          body.Tags.Slice(),
		Collaborators: body.Collaborators.Slice(),
	})
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, result, fiber.StatusCreated)
}

// ProjectDetail handles POST /api/project/detail
// @Summary Get project detail
// @Description Project with tags, attached datasets, granted users and collaborators
// @Tags Project
// @Accept json
// @Produce json
// @Param body body ProjectRequest true "Project id"
// @Success 200 {object} services.ProjectDetail
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /project/detail [post]
func (h *ProjectHandler) ProjectDetail(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body ProjectRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	detail, err := h.Projects.Get(c.UserContext(), userID, body.ProjectID)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, detail, fiber.StatusOK)
}

// AddDataset handles POST /api/project/add-dataset
// @Summary Ingest a dataset
// @Description Desensitize an uploaded CSV or JSON file and attach it to the project
// @Tags Dataset
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV or JSON file"
// @Param projectId formData string true "Project id"
// @Param name formData string true "Dataset name"
// @Param description formData string false "Dataset description"
// @Param columnNames formData string true "Comma-delimited column names"
// @Param columnActions formData string true "Comma-delimited actions: keep, mask or remove"
// @Success 201 {object} models.Dataset
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /project/add-dataset [post]
func (h *ProjectHandler) AddDataset(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	upload, err := readUpload(c, h.MaxUploadBytes)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	dataset, err := h.Datasets.Ingest(c.UserContext(), userID, upload)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, dataset, fiber.StatusCreated)
}

// LivePreview handles POST /api/project/live-preview
// @Summary Preview an upload
// @Description Desensitize an uploaded file in memory and return its first rows. Nothing is stored.
// @Tags Dataset
// @Accept mpfd
// @Produce json
// @Param file formData file true "CSV or JSON file"
// @Param projectId formData string true "Project id"
// @Param columnNames formData string true "Comma-delimited column names"
// @Param columnActions formData string true "Comma-delimited actions: keep, mask or remove"
// @Success 200 {object} services.Preview
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /project/live-preview [post]
func (h *ProjectHandler) LivePreview(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	upload, err := readUpload(c, h.MaxUploadBytes)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	preview, err := h.Datasets.LivePreview(c.UserContext(), userID, upload)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, preview, fiber.StatusOK)
}

// PreviewDataset handles POST /api/project/preview-dataset
// @Summary Preview a stored dataset
// @Description First rows of a dataset's desensitized artifact
// @Tags Dataset
// @Accept json
// @Produce json
// @Param body body DatasetRequest true "Dataset id and row count"
// @Success 200 {object} services.Preview
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 503 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /project/preview-dataset [post]
func (h *ProjectHandler) PreviewDataset(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body DatasetRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	preview, err := h.Datasets.Preview(c.UserContext(), userID, body.DatasetID, body.Rows.Bounded(0, maxPreviewRequest))
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.SuccessResponse(c, preview, fiber.StatusOK)
}

// RemoveDataset handles POST /api/project/remove-dataset
// @Summary Remove a dataset
// @Description Detach a dataset from its project. The artifact is kept.
// @Tags Dataset
// @Accept json
// @Produce json
// @Param body body DatasetRequest true "Dataset id"
// @Success 200 {object} utils.MutationResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /project/remove-dataset [post]
func (h *ProjectHandler) RemoveDataset(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body DatasetRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	dataset, err := h.Datasets.Remove(c.UserContext(), userID, body.DatasetID)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.MutationSuccessResponse(c, dataset.ID)
}

// PurgeDataset handles POST /api/project/purge-dataset
// @Summary Purge a removed dataset
// @Description Delete a removed dataset's artifact and record. Owner only.
// @Tags Dataset
// @Accept json
// @Produce json
// @Param body body DatasetRequest true "Dataset id"
// @Success 200 {object} utils.MutationResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /project/purge-dataset [post]
func (h *ProjectHandler) PurgeDataset(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return utils.ErrorFromService(c, err)
	}

	var body DatasetRequest
	if err := parseBody(c, &body); err != nil {
		return utils.ErrorFromService(c, err)
	}

	if err := h.Datasets.Purge(c.UserContext(), userID, body.DatasetID); err != nil {
		return utils.ErrorFromService(c, err)
	}
	return utils.MutationSuccessResponse(c, body.DatasetID)
}
