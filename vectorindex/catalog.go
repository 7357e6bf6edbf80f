package vectorindex

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/coursebot/model"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Catalog is the YAML course catalog consumed by Ingest.
type Catalog struct {
	Courses []CatalogCourse `yaml:"courses"`
}

// CatalogCourse is one course with lesson bodies.
type CatalogCourse struct {
	Title      string          `yaml:"title"`
	Link       string          `yaml:"link"`
	Instructor string          `yaml:"instructor"`
	Lessons    []CatalogLesson `yaml:"lessons"`
}

// CatalogLesson is one lesson and its transcript text.
type CatalogLesson struct {
	Number  int    `yaml:"number"`
	Title   string `yaml:"title"`
	Link    string `yaml:"link"`
	Content string `yaml:"content"`
}

// Course returns the metadata part of the entry.
func (c CatalogCourse) Course() model.Course {
	course := model.Course{
		Title:      c.Title,
		Link:       c.Link,
		Instructor: c.Instructor,
		Lessons:    make([]model.Lesson, 0, len(c.Lessons)),
	}
	for _, l := range c.Lessons {
		course.Lessons = append(course.Lessons, model.Lesson{Number: l.Number, Title: l.Title, Link: l.Link})
	}
	return course
}

// LoadCatalog decodes and validates a YAML catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(cat.Courses))
	for i, c := range cat.Courses {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			return nil, fmt.Errorf("catalog course %d: title is required", i)
		}
		if _, dup := seen[title]; dup {
			return nil, fmt.Errorf("catalog course %q: duplicate title", title)
		}
		seen[title] = struct{}{}
		cat.Courses[i].Title = title

		lessons := make(map[int]struct{}, len(c.Lessons))
		for _, l := range c.Lessons {
			if _, dup := lessons[l.Number]; dup {
				return nil, fmt.Errorf("catalog course %q: duplicate lesson %d", title, l.Number)
			}
			lessons[l.Number] = struct{}{}
		}
	}
	return &cat, nil
}

// Chunker splits text into overlapping chunks on sentence boundaries.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker creates a chunker, substituting defaults for non-positive values.
// Overlap is clamped below size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split returns the chunks of text. A sentence longer than Size becomes
// its own chunk.
func (c Chunker) Split(text string) []string {
	var chunks []string
	var current []string

	for _, sentence := range splitSentences(text) {
		if len(current) > 0 && joinedLen(current)+1+len(sentence) > c.Size {
			chunks = append(chunks, strings.Join(current, " "))
			current = c.overlapTail(current)
		}
		current = append(current, sentence)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// overlapTail returns the trailing sentences that fit in the overlap budget.
// It never returns the whole input, so every chunk advances.
func (c Chunker) overlapTail(sentences []string) []string {
	start := len(sentences)
	for start > 1 && joinedLen(sentences[start-1:]) <= c.Overlap {
		start--
	}
	if start == len(sentences) {
		return nil
	}
	return append([]string(nil), sentences[start:]...)
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += len(p)
	}
	return n
}

// splitSentences breaks text after '.', '!' or '?' and collapses whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, w := range strings.Fields(text) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		if strings.ContainsAny(w[len(w)-1:], ".!?") {
			sentences = append(sentences, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		sentences = append(sentences, b.String())
	}
	return sentences
}

// Writer is the write side Ingest needs.
type Writer interface {
	HasCourse(ctx context.Context, title string) (bool, error)
	ChunkCount(ctx context.Context, title string) (int, error)
	AddCourse(ctx context.Context, course model.Course) error
	AddChunks(ctx context.Context, chunks []model.Chunk) (int, error)
}

// IngestStats reports what Ingest changed.
type IngestStats struct {
	Courses int
	Chunks  int
	Skipped []string
}

// Ingest adds every catalog course not already stored, with its chunks.
// A stored course that has content but no chunks is ingested again.
// Chunk indexes run across all lessons of a course.
func Ingest(ctx context.Context, w Writer, cat *Catalog, chunker Chunker) (IngestStats, error) {
	var stats IngestStats
	for _, entry := range cat.Courses {
		var chunks []model.Chunk
		for _, lesson := range entry.Lessons {
			for _, text := range chunker.Split(lesson.Content) {
				chunks = append(chunks, model.Chunk{
					CourseTitle:  entry.Title,
					LessonNumber: model.IntPtr(lesson.Number),
					Index:        len(chunks),
					Content:      text,
				})
			}
		}

		indexed, err := isIndexed(ctx, w, entry.Title, len(chunks) > 0)
		if err != nil {
			return stats, err
		}
		if indexed {
			stats.Skipped = append(stats.Skipped, entry.Title)
			continue
		}

		if err := w.AddCourse(ctx, entry.Course()); err != nil {
			return stats, fmt.Errorf("failed to add course %q: %w", entry.Title, err)
		}
		n, err := w.AddChunks(ctx, chunks)
		if err != nil {
			return stats, fmt.Errorf("failed to add chunks for %q: %w", entry.Title, err)
		}
		stats.Courses++
		stats.Chunks += n
	}
	return stats, nil
}

func isIndexed(ctx context.Context, w Writer, title string, hasContent bool) (bool, error) {
	exists, err := w.HasCourse(ctx, title)
	if err != nil || !exists || !hasContent {
		return exists, err
	}
	n, err := w.ChunkCount(ctx, title)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
