package ingest

import (
	"github.com/cespare/xxhash/v2"

	"skill-sync-engine/internal/domain/job"
)

// ContentHash fingerprints the fields that decide updated vs unchanged.
// Fields are separated by a unit separator so shifting text between
// adjacent fields changes the hash.
func ContentHash(c job.Content) uint64 {
	d := xxhash.New()
	for i, f := range []string{c.Title, c.Company, c.Description, c.Location, c.EmploymentType} {
		if i > 0 {
			_, _ = d.Write([]byte{0x1f})
		}
		_, _ = d.WriteString(f)
	}
	return d.Sum64()
}
