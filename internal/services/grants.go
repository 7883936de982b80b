// grants.go
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

package services

import (
	"context"

	"github.com/localnerve/datashare/internal/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Granter applies the relationship side effects of an accepted proposal. It
// runs inside the caller's transaction so the grant and the status change
// commit or roll back together.
type Granter interface {
	Grant(ctx context.Context, tx *gorm.DB, projectID, proposalID string, userIDs []string) (int64, error)
}

// AccessGranter writes one shared edge per user. An edge is both the user's
// shared-project entry and the project's granted-access entry, so the two
// views cannot disagree. Existing edges are left as they are.
type AccessGranter struct{}

// Grant returns the number of new edges.
func (AccessGranter) Grant(ctx context.Context, tx *gorm.DB, projectID, proposalID string, userIDs []string) (int64, error) {
	userIDs = lo.Uniq(lo.Compact(userIDs))
	if len(userIDs) == 0 {
		return 0, nil
	}

	edges := lo.Map(userIDs, func(id string, _ int) models.ProjectMember {
		return models.ProjectMember{
			UserID:     id,
			ProjectID:  projectID,
			Role:       models.RoleShared,
			ProposalID: lo.ToPtr(proposalID),
		}
	})

	result := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&edges)
	if result.Error != nil {
		return 0, storageError("proposal.grant", result.Error)
	}
	return result.RowsAffected, nil
}
