package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-sync-engine/internal/config"
)

func TestDSN_ParsesWithEmptyAndQuotedPassword(t *testing.T) {
	for _, pw := range []string{"", "s3cr'et", `back\slash`} {
		cfg := config.DatabaseConfig{
			DBHost: "db", DBPort: "5433", DBUser: "app", DBPassword: pw, DBName: "skills", DBSSLMode: "disable",
		}
		parsed, err := pgx.ParseConfig(DSN(cfg))
		require.NoError(t, err)
		assert.Equal(t, "db", parsed.Host)
		assert.Equal(t, uint16(5433), parsed.Port)
		assert.Equal(t, "skills", parsed.Database)
		assert.Equal(t, pw, parsed.Password)
	}
}
