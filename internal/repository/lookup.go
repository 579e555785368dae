package repository

import (
	"database/sql"
	"errors"

	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

// isMissing reports lookups that cannot match a row: nothing found, or an id
// Postgres refuses to cast to UUID.
func isMissing(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || appErrors.IsInvalidIdentifier(err)
}
