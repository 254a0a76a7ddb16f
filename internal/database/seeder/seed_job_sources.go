package seeder

import (
	"context"
	"strings"

	"skill-sync-engine/internal/database"
)

var knownSourceURLs = map[string]string{
	"indeed":    "https://www.indeed.com",
	"linkedin":  "https://www.linkedin.com/jobs",
	"glassdoor": "https://www.glassdoor.com",
	"google":    "https://www.google.com/search?q=jobs",
	"glints":    "https://glints.com",
}

// JobSourcesSeeder registers the scrape origins. Unknown names are inserted
// without a base_url.
type JobSourcesSeeder struct {
	Names []string
}

func (JobSourcesSeeder) Name() string { return "job_sources" }

func (s JobSourcesSeeder) Run(ctx context.Context, db database.DB) (int64, error) {
	var inserted int64
	err := database.WithTx(ctx, db, func(tx database.Tx) error {
		for _, name := range s.Names {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			var baseURL *string
			if u, ok := knownSourceURLs[name]; ok {
				baseURL = &u
			}
			n, err := tx.Exec(ctx,
				`INSERT INTO job_sources (name, base_url) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
				name, baseURL,
			)
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	return inserted, err
}
