// common.go
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
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/datashare/internal/middleware"
	"github.com/localnerve/datashare/internal/services"
	"github.com/localnerve/datashare/internal/types"
)

// maxPreviewRequest caps the rows a client may ask for before the service
// applies its own bound.
const maxPreviewRequest = 10000

// callerID returns the id of the identity set by the auth middleware.
func callerID(c *fiber.Ctx) (string, error) {
	identity, ok := c.Locals(middleware.UserKey).(*services.Identity)
	if !ok || identity == nil || identity.UserID == "" {
		return "", types.NewAuthorizationError("auth.identity", "Authenticated identity required")
	}
	return identity.UserID, nil
}

// parseBody decodes a JSON body, reporting malformed input as a validation error.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return types.NewValidationError("request.validation.input", "Invalid input: %v", err)
	}
	return nil
}

// readUpload collects the multipart fields shared by add-dataset and
// live-preview. The file is read up to maxBytes.
func readUpload(c *fiber.Ctx, maxBytes int) (services.Upload, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return services.Upload{}, types.NewValidationError("dataset.validation.file", "Multipart field \"file\" is required")
	}
	if maxBytes > 0 && header.Size > int64(maxBytes) {
		return services.Upload{}, types.NewValidationError("dataset.validation.size",
			"File exceeds the %d byte upload limit", maxBytes)
	}

	spec, err := services.ParseColumnSpec(c.FormValue("columnNames"), c.FormValue("columnActions"))
	if err != nil {
		return services.Upload{}, err
	}

	f, err := header.Open()
	if err != nil {
		return services.Upload{}, types.NewValidationError("dataset.validation.file", "Could not open uploaded file: %v", err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, int64(maxBytes)+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return services.Upload{}, types.NewValidationError("dataset.validation.file", "Could not read uploaded file: %v", err)
	}
	if maxBytes > 0 && len(content) > maxBytes {
		return services.Upload{}, types.NewValidationError("dataset.validation.size",
			"File exceeds the %d byte upload limit", maxBytes)
	}

	return services.Upload{
		ProjectID:   c.FormValue("projectId"),
		Name:        c.FormValue("name"),
		Description: c.FormValue("description"),
		Filename:    header.Filename,
		Content:     content,
		Spec:        spec,
	}, nil
}

// ProjectRequest identifies a project.
type ProjectRequest struct {
	ProjectID string `json:"projectId"`
}

// DatasetRequest identifies a dataset, with an optional preview row count.
type DatasetRequest struct {
	DatasetID string           `json:"datasetId"`
	Rows      types.FlexUint64 `json:"rows" swaggertype:"integer"`
}

// CreateProjectRequest is the body of /project/create.
type CreateProjectRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Abstract      string            `json:"abstract"`
	IsPublic      bool              `json:"isPublic"`
	Tags          types.FlexStrings `json:"tags" swaggertype:"array,string"`
	Collaborators types.FlexStrings `json:"collaborators" swaggertype:"array,string"`
}

// ProposalRequest is the body of /proposal/create and /proposal/update.
// Applicants are given by email.
type ProposalRequest struct {
	ProposalID                string            `json:"proposalId,omitempty"`
	ProjectID                 string            `json:"projectId"`
	ProposalText              string            `json:"proposalText"`
	PotentialResearchBenefits string            `json:"potentialResearchBenefits"`
	ApplicantUserIDs          types.FlexStrings `json:"applicantUserIds" swaggertype:"array,string"`
}

func (r ProposalRequest) input() services.ProposalInput {
	return services.ProposalInput{
		ProjectID:                 r.ProjectID,
		ProposalText:              r.ProposalText,
		PotentialResearchBenefits: r.PotentialResearchBenefits,
		Applicants:                r.ApplicantUserIDs.Slice(),
	}
}

// ProposalIDRequest identifies a proposal.
type ProposalIDRequest struct {
	ProposalID string `json:"proposalId"`
}

// EvaluateRequest is the body of /proposal/evaluate.
type EvaluateRequest struct {
	ProposalID         string `json:"proposalId"`
	Verified           string `json:"verified" enums:"accept,reject"`
	ProposalReviewText string `json:"proposalReviewText"`
}
