package seeder

import (
	"context"

	"skill-sync-engine/internal/database"
)

type SkillsSeeder struct{}

func (SkillsSeeder) Name() string { return "skills" }

func (SkillsSeeder) Run(ctx context.Context, db database.DB) (int64, error) {
	items := []struct {
		Name     string
		Category string
	}{
		{Name: "Go", Category: "Programming Language"},
		{Name: "Python", Category: "Programming Language"},
		{Name: "Java", Category: "Programming Language"},
		{Name: "JavaScript", Category: "Programming Language"},
		{Name: "TypeScript", Category: "Programming Language"},
		{Name: "SQL", Category: "Database"},
		{Name: "PostgreSQL", Category: "Database"},
		{Name: "Redis", Category: "Database"},
		{Name: "Docker", Category: "DevOps"},
		{Name: "Kubernetes", Category: "DevOps"},
		{Name: "AWS", Category: "Cloud"},
		{Name: "GCP", Category: "Cloud"},
	}

	var inserted int64
	err := database.WithTx(ctx, db, func(tx database.Tx) error {
		for _, it := range items {
			n, err := tx.Exec(ctx,
				`INSERT INTO skills (name, category) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
				it.Name, it.Category,
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
