package pgvector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/poiesic/docsync/core"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "docsync_chunks"

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

func validateTable(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// schemaStatements returns the DDL that prepares table. A dimension of zero
// leaves the vector column unconstrained.
func schemaStatements(table string, dimension int) []string {
	vectorType := "vector"
	if dimension > 0 {
		vectorType = fmt.Sprintf("vector(%d)", dimension)
	}
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding  %s NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, vectorType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING GIN (metadata)`, table, table),
	}
}

func upsertStatement(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, text, metadata, embedding, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`, table)
}

func deleteStatement(table string) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table)
}

func countStatement(table string) string {
	return fmt.Sprintf(`SELECT count(*) FROM %s`, table)
}

// buildQuery returns the nearest-neighbour query for k results and its
// trailing arguments. The query vector is always $1.
func buildQuery(table string, k int, filter core.Filter) (string, []any, error) {
	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, `SELECT id, text, metadata, 1 - (embedding <=> $1) AS score FROM %s`, table)
	if len(filter) > 0 {
		doc, err := sonic.Marshal(map[string]string(filter))
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(doc))
		fmt.Fprintf(&sb, ` WHERE metadata @> $%d::jsonb`, len(args)+1)
	}
	args = append(args, k)
	fmt.Fprintf(&sb, ` ORDER BY embedding <=> $1, id LIMIT $%d`, len(args)+1)
	return sb.String(), args, nil
}
