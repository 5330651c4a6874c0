package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lamim/campaignforge/internal/util"
)

// Embedder turns text into embedding vectors. The API client satisfies this
// through a thin adapter so the store stays independent of HTTP concerns.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// QueryResult is one retrieved chunk with its cosine similarity.
type QueryResult struct {
	Heading    string
	Content    string
	Similarity float64
}

// embeddingBatchSize caps how many chunks go to the embedding endpoint per
// request.
const embeddingBatchSize = 16

func chunkTableName(campaign string) string {
	// Table names cannot be bound as parameters. The identifier is forced to
	// [a-z0-9_] even when the caller passes an unsanitized name.
	return "chunks_" + util.SanitizeTitle(campaign)
}

// IndexCampaign chunks the document, embeds every chunk, and rebuilds the
// campaign's vector table.
func (s *Store) IndexCampaign(ctx context.Context, embedder Embedder, name, content string) (int, error) {
	chunks := ChunkMarkdown(content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	table := chunkTableName(name)
	if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return 0, fmt.Errorf("failed to drop old chunk table: %w", err)
	}
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE %s (
			id INTEGER PRIMARY KEY,
			heading TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`, table))
	if err != nil {
		return 0, fmt.Errorf("failed to create chunk table: %w", err)
	}

	inserted := 0
	for start := 0; start < len(chunks); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		inputs := make([]string, len(batch))
		for i, c := range batch {
			inputs[i] = c.Content
		}

		vectors, err := embedder.Embed(ctx, inputs)
		if err != nil {
			return inserted, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return inserted, fmt.Errorf("failed to begin transaction: %w", err)
		}
		stmt, err := tx.Prepare(fmt.Sprintf(
			"INSERT INTO %s (heading, content, embedding) VALUES (?, ?, ?)", table))
		if err != nil {
			tx.Rollback()
			return inserted, fmt.Errorf("failed to prepare insert: %w", err)
		}
		for i, c := range batch {
			if _, err := stmt.Exec(c.Heading, c.Content, encodeVector(vectors[i])); err != nil {
				stmt.Close()
				tx.Rollback()
				return inserted, fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return inserted, fmt.Errorf("failed to commit chunks: %w", err)
		}
		inserted += len(batch)
	}

	if err := s.markIndexed(name); err != nil {
		return inserted, err
	}

	s.logger.Info("Campaign indexed", "name", name, "chunks", inserted)
	return inserted, nil
}

// Query embeds the question and returns the topK closest chunks by cosine
// distance.
func (s *Store) Query(ctx context.Context, embedder Embedder, name, question string, topK int) ([]QueryResult, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	vectors, err := embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	table := chunkTableName(name)
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT heading, content, vec_distance_cosine(embedding, ?) AS distance
		FROM %s
		ORDER BY distance ASC
		LIMIT ?`, table), encodeVector(vectors[0]), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign index: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var r QueryResult
		var distance float64
		if err := rows.Scan(&r.Heading, &r.Content, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.Similarity = 1 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// FormatContext joins query results into a context block for narration
// prompts.
func FormatContext(results []QueryResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		b.WriteString(r.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Sync scans the campaigns directory, registers markdown files missing from
// the catalog, and (re)indexes any campaign without an index stamp. Returns
// how many campaigns were indexed.
func (s *Store) Sync(ctx context.Context, embedder Embedder) (int, error) {
	entries, err := os.ReadDir(s.cfg.CampaignsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read campaigns directory: %w", err)
	}

	indexed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		// File names on disk are not necessarily catalog-safe
		name := util.SanitizeTitle(strings.TrimSuffix(entry.Name(), ".md"))
		path := filepath.Join(s.cfg.CampaignsDir, entry.Name())

		existing, err := s.Get(name)
		if err != nil {
			// Not cataloged yet: register with the file name as display name
			if err := s.Register(name, displayNameFromFile(name), "", path); err != nil {
				return indexed, err
			}
		} else if existing.IndexedAt != nil {
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return indexed, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if _, err := s.IndexCampaign(ctx, embedder, name, string(content)); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}

func (s *Store) dropChunkTable(name string) error {
	if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", chunkTableName(name))); err != nil {
		return fmt.Errorf("failed to drop chunk table: %w", err)
	}
	return nil
}

func displayNameFromFile(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// encodeVector encodes a float32 slice as the little-endian blob sqlite-vec
// expects.
func encodeVector(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}
