package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ui-annotator/api/internal/annotate"
)

var ErrNotFound = sql.ErrNoRows

//go:embed schema.sql
var schemaSQL string

type ComponentRepo struct{ DB *sql.DB }

func NewComponentRepo(db *sql.DB) *ComponentRepo { return &ComponentRepo{DB: db} }

// EnsureSchema creates the table and indexes when missing.
func (r *ComponentRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func splitStatements(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SaveAll stores a run's components in one transaction. A component that
// already exists for (screenshot_id, component_name) is replaced and keeps its
// id, which is written back into comps.
func (r *ComponentRepo) SaveAll(ctx context.Context, comps []annotate.ComponentDetectionResult) error {
	if len(comps) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
insert into component_results (
  id, screenshot_id, component_name, description, status, total_inference_ms,
  elements_json, metadata_json, annotated_image, original_image, created_at
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
on conflict (screenshot_id, component_name) do update
set description = excluded.description,
    status = excluded.status,
    total_inference_ms = excluded.total_inference_ms,
    elements_json = excluded.elements_json,
    metadata_json = excluded.metadata_json,
    annotated_image = excluded.annotated_image,
    original_image = excluded.original_image,
    created_at = excluded.created_at,
    updated_at = now()
returning id`
	for i := range comps {
		c := &comps[i]
		els, meta, err := encode(c)
		if err != nil {
			return err
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		var id string
		if err := tx.QueryRowContext(ctx, q,
			c.ID, c.ScreenshotID, c.ComponentName, c.Description, string(c.Status), c.TotalInferenceTimeMs,
			els, meta, c.AnnotatedImage, c.OriginalImage, created,
		).Scan(&id); err != nil {
			return fmt.Errorf("save component %q: %w", c.ComponentName, err)
		}
		c.ID = id
	}
	return tx.Commit()
}

// FindByScreenshot returns the screenshot's components ordered by name.
// withImages=false skips the image columns.
func (r *ComponentRepo) FindByScreenshot(ctx context.Context, screenshotID string, withImages bool) ([]annotate.ComponentDetectionResult, error) {
	images := "null::bytea, null::bytea"
	if withImages {
		images = "annotated_image, original_image"
	}
	q := `
select id, screenshot_id, component_name, description, status, total_inference_ms,
       elements_json, metadata_json, ` + images + `, created_at
from component_results
where screenshot_id = $1
order by component_name`
	rows, err := r.DB.QueryContext(ctx, q, screenshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []annotate.ComponentDetectionResult
	for rows.Next() {
		var (
			c      annotate.ComponentDetectionResult
			status string
			els    []byte
			meta   []byte
		)
		if err := rows.Scan(&c.ID, &c.ScreenshotID, &c.ComponentName, &c.Description, &status,
			&c.TotalInferenceTimeMs, &els, &meta, &c.AnnotatedImage, &c.OriginalImage, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Status = annotate.ComponentStatus(status)
		if err := json.Unmarshal(els, &c.Elements); err != nil {
			return nil, fmt.Errorf("component %s: elements: %w", c.ID, err)
		}
		if len(meta) > 0 {
			var m annotate.ComponentMetadata
			if err := json.Unmarshal(meta, &m); err != nil {
				return nil, fmt.Errorf("component %s: metadata: %w", c.ID, err)
			}
			c.Metadata = &m
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateMerged writes back what the merge stages change: elements, metadata
// and description.
func (r *ComponentRepo) UpdateMerged(ctx context.Context, c *annotate.ComponentDetectionResult) error {
	els, meta, err := encode(c)
	if err != nil {
		return err
	}
	const q = `
update component_results
set elements_json = $2, metadata_json = $3, description = $4, updated_at = now()
where id = $1`
	res, err := r.DB.ExecContext(ctx, q, c.ID, els, meta, c.Description)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeOlderThan deletes components created before now-olderThan.
func (r *ComponentRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, `delete from component_results where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

func encode(c *annotate.ComponentDetectionResult) (els []byte, meta []byte, err error) {
	elements := c.Elements
	if elements == nil {
		elements = []annotate.ElementDetectionItem{}
	}
	if els, err = json.Marshal(elements); err != nil {
		return nil, nil, fmt.Errorf("encode elements: %w", err)
	}
	if c.Metadata != nil {
		if meta, err = json.Marshal(c.Metadata); err != nil {
			return nil, nil, fmt.Errorf("encode metadata: %w", err)
		}
	}
	return els, meta, nil
}
