package seeder

// Defaults returns the idempotent reference-data seeders. sources lists the
// job source names the ingestion pipeline will accept.
func Defaults(sources []string) []Seeder {
	return []Seeder{
		JobSourcesSeeder{Names: sources},
		SkillsSeeder{},
	}
}
