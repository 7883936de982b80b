package services

import (
	"errors"
	"regexp"
	"strings"

	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/types"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// silent returns a session that does not log record-not-found lookups
func silent(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)})
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// storageError passes CustomErrors through and wraps anything else as a
// dependency failure.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *types.CustomError
	if errors.As(err, &ce) {
		return err
	}
	return types.NewDependencyError(op, err)
}

// Resolution is the outcome of mapping contact emails to users.
type Resolution struct {
	UserIDs    []string
	Unresolved []string
}

// normalizeEmails trims, lowercases and dedupes emails, rejecting malformed ones.
func normalizeEmails(emails []string) ([]string, error) {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !emailPattern.MatchString(e) {
			return nil, types.NewValidationError("user.validation.email", "Invalid email address %q", e)
		}
		out = append(out, e)
	}
	return lo.Uniq(out), nil
}

// resolveEmails maps emails to user ids in input order. Unknown addresses are
// reported in Unresolved rather than failing the call.
func resolveEmails(tx *gorm.DB, emails []string) (Resolution, error) {
	normalized, err := normalizeEmails(emails)
	if err != nil {
		return Resolution{}, err
	}
	if len(normalized) == 0 {
		return Resolution{UserIDs: []string{}, Unresolved: []string{}}, nil
	}

	var users []models.User
	if err := tx.Select("id", "email").Where("email IN ?", normalized).Find(&users).Error; err != nil {
		return Resolution{}, storageError("user.resolve", err)
	}
	byEmail := lo.SliceToMap(users, func(u models.User) (string, string) {
		return strings.ToLower(u.Email), u.ID
	})

	res := Resolution{UserIDs: []string{}, Unresolved: []string{}}
	for _, e := range normalized {
		if id, ok := byEmail[e]; ok {
			res.UserIDs = append(res.UserIDs, id)
		} else {
			res.Unresolved = append(res.Unresolved, e)
		}
	}
	res.UserIDs = lo.Uniq(res.UserIDs)
	return res, nil
}

// requireUser checks that the caller has a user record.
func requireUser(tx *gorm.DB, userID string) (*models.User, error) {
	if userID == "" {
		return nil, types.NewAuthorizationError("user.authorization", "Authenticated user required")
	}
	var user models.User
	if err := silent(tx).Where("id = ?", userID).First(&user).Error; err != nil {
		if isNotFound(err) {
			return nil, types.NewNotFoundError("user.notfound", "User %s not found", userID)
		}
		return nil, storageError("user.lookup", err)
	}
	if user.Blocked {
		return nil, types.NewAuthorizationError("user.authorization.blocked", "User %s is blocked", userID)
	}
	return &user, nil
}
