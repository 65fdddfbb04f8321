package roles

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/scriptassist/masterapp/internal/platform/httpx"
)

func TestMapUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"})
	err := mapUniqueViolation(dup, "Support Agent")
	assert.True(t, errors.Is(err, httpx.ErrConflict))
	assert.Contains(t, err.Error(), "Support Agent")

	fk := &pgconn.PgError{Code: "23503"}
	assert.Equal(t, error(fk), mapUniqueViolation(fk, "Support Agent"))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapUniqueViolation(plain, "Support Agent"))
}
