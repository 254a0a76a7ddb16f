package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
)

const jobColumns = `id, source_id, external_job_id, url, source_url, source, title, company, location,
	employment_type, description, raw_description, is_active, posted_at, scraped_at, created_at`

// PostgresJobRepository is the canonical job catalog. Conditional writes
// compare scraped_at so concurrent ingesters in other processes lose
// cleanly instead of overwriting each other.
type PostgresJobRepository struct {
	db database.DB
}

func NewPostgresJobRepository(db database.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) FindByKey(ctx context.Context, key job.DedupKey) (job.Job, bool, error) {
	if key.ExternalID != "" {
		j, err := scanJob(r.db.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE source_id = $1 AND external_job_id = $2`,
			key.SourceID, key.ExternalID,
		))
		if err == nil {
			return j, true, nil
		}
		if !database.IsNoRows(err) {
			return job.Job{}, false, err
		}
	}
	if key.URL == "" {
		return job.Job{}, false, nil
	}

	j, err := scanJob(r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source_id = $1 AND url = $2`,
		key.SourceID, key.URL,
	))
	if err != nil {
		if database.IsNoRows(err) {
			return job.Job{}, false, nil
		}
		return job.Job{}, false, err
	}
	return j, true, nil
}

func (r *PostgresJobRepository) Create(ctx context.Context, j job.Job) (uuid.UUID, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO jobs (id, source_id, external_job_id, url, source_url, source, title, company, location,
			employment_type, description, raw_description, is_active, posted_at, scraped_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		j.ID, j.SourceID, j.ExternalJobID, j.URL, j.SourceURL, j.Source, j.Title, j.Company, j.Location,
		j.EmploymentType, j.Description, j.RawDescription, j.IsActive, j.PostedAt, j.ScrapedAt, j.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrDuplicateKey, database.ConstraintName(err))
		}
		return uuid.Nil, err
	}
	return j.ID, nil
}

func (r *PostgresJobRepository) UpdateContent(ctx context.Context, j job.Job, prevScrapedAt *time.Time) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE jobs SET
			external_job_id = $2, url = $3, source_url = $4, source = $5, title = $6, company = $7,
			location = $8, employment_type = $9, description = $10, raw_description = $11,
			posted_at = $12, scraped_at = $13, is_active = true
		 WHERE id = $1 AND scraped_at IS NOT DISTINCT FROM $14`,
		j.ID, j.ExternalJobID, j.URL, j.SourceURL, j.Source, j.Title, j.Company,
		j.Location, j.EmploymentType, j.Description, j.RawDescription,
		j.PostedAt, j.ScrapedAt, prevScrapedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, fmt.Errorf("%w: %s", domain.ErrDuplicateKey, database.ConstraintName(err))
		}
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresJobRepository) Touch(ctx context.Context, id uuid.UUID, prevScrapedAt *time.Time, scrapedAt time.Time) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE jobs SET scraped_at = $2, is_active = true
		 WHERE id = $1 AND scraped_at IS NOT DISTINCT FROM $3`,
		id, scrapedAt, prevScrapedAt,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresJobRepository) DeactivateUnseen(ctx context.Context, sourceID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE jobs SET is_active = false
		 WHERE source_id = $1 AND is_active AND (scraped_at IS NULL OR scraped_at < $2)
		 RETURNING id`,
		sourceID, since,
	)
	if err != nil {
		return nil, err
	}
	return collectUUIDs(rows)
}

func (r *PostgresJobRepository) Get(ctx context.Context, id uuid.UUID) (job.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return job.Job{}, domain.ErrJobNotFound
		}
		return job.Job{}, err
	}
	return j, nil
}

func scanJob(row database.Row) (job.Job, error) {
	var (
		j                                            job.Job
		externalID, url, sourceURL, source, title    sql.NullString
		company, location, employment, desc, rawDesc sql.NullString
		postedAt, scrapedAt                          sql.NullTime
	)
	err := row.Scan(
		&j.ID, &j.SourceID, &externalID, &url, &sourceURL, &source, &title, &company, &location,
		&employment, &desc, &rawDesc, &j.IsActive, &postedAt, &scrapedAt, &j.CreatedAt,
	)
	if err != nil {
		return job.Job{}, err
	}
	j.ExternalJobID = nullString(externalID)
	j.URL = nullString(url)
	j.SourceURL = nullString(sourceURL)
	j.Source = nullString(source)
	j.Title = nullString(title)
	j.Company = nullString(company)
	j.Location = nullString(location)
	j.EmploymentType = nullString(employment)
	j.Description = nullString(desc)
	j.RawDescription = nullString(rawDesc)
	j.PostedAt = nullTime(postedAt)
	j.ScrapedAt = nullTime(scrapedAt)
	return j, nil
}
