package repository

import "github.com/google/uuid"

// canonicalID parses id as a UUID, the type of every id column, and returns
// its canonical text form. Malformed ids cannot match any row, so callers
// treat them as not found instead of letting Postgres reject the cast.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
