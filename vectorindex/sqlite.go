package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/coursebot/internal/dsa"
	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/model"
)

const (
	// DefaultTimeout bounds each public index call.
	DefaultTimeout = 10 * time.Second

	// DefaultTopK is used when Search is called with topK <= 0.
	DefaultTopK = 5

	// minTitleScore is the cosine floor for embedding-based title resolution.
	minTitleScore = 0.6
)

// SqliteIndex implements Index on SQLite with brute-force cosine ranking.
// Thread-safe: sql.DB pools connections and the title index is guarded by mu.
type SqliteIndex struct {
	db       *sql.DB
	embedder Embedder
	timeout  time.Duration
	log      *logging.Logger

	mu     sync.RWMutex
	titles *dsa.TitleIndex
}

// Option configures a SqliteIndex.
type Option func(*SqliteIndex)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(idx *SqliteIndex) {
		if d > 0 {
			idx.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(idx *SqliteIndex) {
		if log != nil {
			idx.log = log.Sub("vectorindex")
		}
	}
}

// Open opens or creates an index database at path.
// Creates parent directories if they don't exist.
func Open(path string, embedder Embedder, opts ...Option) (*SqliteIndex, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	return newIndex(db, embedder, opts)
}

// OpenInMemory creates an in-memory index (useful for testing).
func OpenInMemory(embedder Embedder, opts ...Option) (*SqliteIndex, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newIndex(db, embedder, opts)
}

func newIndex(db *sql.DB, embedder Embedder, opts []Option) (*SqliteIndex, error) {
	idx := &SqliteIndex{
		db:       db,
		embedder: embedder,
		timeout:  DefaultTimeout,
		log:      logging.Nop(),
		titles:   dsa.NewTitleIndex(),
	}
	for _, opt := range opts {
		opt(idx)
	}

	if err := idx.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := idx.loadTitles(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the database connection.
func (idx *SqliteIndex) Close() error {
	return idx.db.Close()
}

func (idx *SqliteIndex) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS courses (
			title TEXT PRIMARY KEY,
			link TEXT NOT NULL DEFAULT '',
			instructor TEXT NOT NULL DEFAULT '',
			embedding BLOB
		);

		CREATE TABLE IF NOT EXISTS lessons (
			course_title TEXT NOT NULL,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (course_title, number),
			FOREIGN KEY (course_title) REFERENCES courses(title) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			course_title TEXT NOT NULL,
			lesson_number INTEGER,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			embedding BLOB NOT NULL,
			UNIQUE(course_title, fingerprint)
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_course
		ON chunks(course_title, lesson_number);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (idx *SqliteIndex) loadTitles() error {
	rows, err := idx.db.Query("SELECT title FROM courses")
	if err != nil {
		return fmt.Errorf("failed to load course titles: %w", err)
	}
	defer rows.Close()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return fmt.Errorf("failed to scan course title: %w", err)
		}
		idx.titles.Add(title)
	}
	return rows.Err()
}

func (idx *SqliteIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, idx.timeout)
}

// Search implements Index.
func (idx *SqliteIndex) Search(ctx context.Context, query string, filter Filter, topK int) ([]Hit, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	hits, err := idx.search(ctx, query, filter, topK)
	if err != nil {
		return nil, classify("search", err)
	}
	return hits, nil
}

func (idx *SqliteIndex) search(ctx context.Context, query string, filter Filter, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var total int
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		return nil, &Error{Kind: KindEmptyIndex, Op: "search"}
	}

	vecs, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVec := vecs[0]

	q := `
		SELECT c.content, c.course_title, c.lesson_number, c.embedding,
			COALESCE(NULLIF(l.link, ''), co.link, '')
		FROM chunks c
		LEFT JOIN lessons l ON l.course_title = c.course_title AND l.number = c.lesson_number
		LEFT JOIN courses co ON co.title = c.course_title`
	var where []string
	var args []interface{}
	if filter.CourseTitle != "" {
		where = append(where, "c.course_title = ?")
		args = append(args, filter.CourseTitle)
	}
	if filter.LessonNumber != nil {
		where = append(where, "c.lesson_number = ?")
		args = append(args, *filter.LessonNumber)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := idx.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit    Hit
			lesson sql.NullInt64
			blob   []byte
		)
		if err := rows.Scan(&hit.Content, &hit.CourseTitle, &lesson, &blob, &hit.Link); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		if lesson.Valid {
			hit.LessonNumber = model.IntPtr(int(lesson.Int64))
		}
		hit.Score = cosine(queryVec, vec)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// ResolveCourseTitle implements Index.
// Fuzzy title matching runs first, then embedding similarity over titles.
func (idx *SqliteIndex) ResolveCourseTitle(ctx context.Context, name string) (string, bool, error) {
	idx.mu.RLock()
	title, ok := idx.titles.Resolve(name)
	empty := idx.titles.Len() == 0
	idx.mu.RUnlock()
	if ok {
		return title, true, nil
	}
	if empty || strings.TrimSpace(name) == "" {
		return "", false, nil
	}

	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	title, ok, err := idx.resolveByEmbedding(ctx, name)
	if err != nil {
		return "", false, classify("resolve", err)
	}
	return title, ok, nil
}

func (idx *SqliteIndex) resolveByEmbedding(ctx context.Context, name string) (string, bool, error) {
	vecs, err := idx.embedder.Embed(ctx, []string{name})
	if err != nil {
		return "", false, fmt.Errorf("failed to embed course name: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, "SELECT title, embedding FROM courses WHERE embedding IS NOT NULL")
	if err != nil {
		return "", false, fmt.Errorf("failed to query course embeddings: %w", err)
	}
	defer rows.Close()

	best, bestScore := "", 0.0
	for rows.Next() {
		var title string
		var blob []byte
		if err := rows.Scan(&title, &blob); err != nil {
			return "", false, fmt.Errorf("failed to scan course: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return "", false, err
		}
		if score := cosine(vecs[0], vec); score > bestScore {
			best, bestScore = title, score
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("error iterating courses: %w", err)
	}

	if bestScore < minTitleScore {
		idx.log.Debug().Str("name", name).Str("closest", best).Float64("score", bestScore).Msg("no course title match")
		return "", false, nil
	}
	return best, true, nil
}

// Outline implements Index.
func (idx *SqliteIndex) Outline(ctx context.Context, title string) (model.Course, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	course, err := idx.outline(ctx, title)
	if err != nil {
		return model.Course{}, classify("outline", err)
	}
	return course, nil
}

func (idx *SqliteIndex) outline(ctx context.Context, title string) (model.Course, error) {
	course := model.Course{Title: title}
	err := idx.db.QueryRowContext(ctx,
		"SELECT link, instructor FROM courses WHERE title = ?", title,
	).Scan(&course.Link, &course.Instructor)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Course{}, ErrCourseNotFound
	}
	if err != nil {
		return model.Course{}, fmt.Errorf("failed to query course: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx,
		"SELECT number, title, link FROM lessons WHERE course_title = ? ORDER BY number ASC", title)
	if err != nil {
		return model.Course{}, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	course.Lessons = []model.Lesson{}
	for rows.Next() {
		var l model.Lesson
		if err := rows.Scan(&l.Number, &l.Title, &l.Link); err != nil {
			return model.Course{}, fmt.Errorf("failed to scan lesson: %w", err)
		}
		course.Lessons = append(course.Lessons, l)
	}
	if err := rows.Err(); err != nil {
		return model.Course{}, fmt.Errorf("error iterating lessons: %w", err)
	}
	return course, nil
}

// AddCourse stores course metadata and its lessons, replacing any previous
// entry with the same title.
func (idx *SqliteIndex) AddCourse(ctx context.Context, course model.Course) error {
	if strings.TrimSpace(course.Title) == "" {
		return fmt.Errorf("course title must not be empty")
	}
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	vecs, err := idx.embedder.Embed(ctx, []string{course.Title})
	if err != nil {
		return classify("add_course", fmt.Errorf("failed to embed course title: %w", err))
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("add_course", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO courses (title, link, instructor, embedding) VALUES (?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET link = excluded.link, instructor = excluded.instructor,
			embedding = excluded.embedding`,
		course.Title, course.Link, course.Instructor, encodeVector(vecs[0]))
	if err != nil {
		return classify("add_course", fmt.Errorf("failed to insert course: %w", err))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM lessons WHERE course_title = ?", course.Title); err != nil {
		return classify("add_course", fmt.Errorf("failed to clear lessons: %w", err))
	}
	for _, l := range course.Lessons {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO lessons (course_title, number, title, link) VALUES (?, ?, ?, ?)",
			course.Title, l.Number, l.Title, l.Link)
		if err != nil {
			return classify("add_course", fmt.Errorf("failed to insert lesson %d: %w", l.Number, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("add_course", fmt.Errorf("failed to commit transaction: %w", err))
	}

	idx.mu.Lock()
	idx.titles.Add(course.Title)
	idx.mu.Unlock()
	return nil
}

// AddChunks embeds and stores chunks. Chunks whose content is already
// stored for the same course are skipped. Returns the number inserted.
func (idx *SqliteIndex) AddChunks(ctx context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, classify("add_chunks", fmt.Errorf("failed to embed chunks: %w", err))
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("add_chunks", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO chunks
		(id, course_title, lesson_number, chunk_index, content, fingerprint, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, classify("add_chunks", fmt.Errorf("failed to prepare insert statement: %w", err))
	}
	defer stmt.Close()

	inserted := 0
	for i, c := range chunks {
		var lesson interface{}
		if c.LessonNumber != nil {
			lesson = *c.LessonNumber
		}
		res, err := stmt.ExecContext(ctx,
			ChunkID(c.CourseTitle, c.Index), c.CourseTitle, lesson, c.Index, c.Content,
			Fingerprint(c.Content), encodeVector(vecs[i]))
		if err != nil {
			return 0, classify("add_chunks", fmt.Errorf("failed to insert chunk: %w", err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("add_chunks", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return inserted, nil
}

// CourseTitles lists stored course titles in alphabetical order.
func (idx *SqliteIndex) CourseTitles(ctx context.Context) ([]string, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	rows, err := idx.db.QueryContext(ctx, "SELECT title FROM courses ORDER BY title ASC")
	if err != nil {
		return nil, classify("titles", fmt.Errorf("failed to query courses: %w", err))
	}
	defer rows.Close()

	titles := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, classify("titles", fmt.Errorf("failed to scan course: %w", err))
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("titles", fmt.Errorf("error iterating courses: %w", err))
	}
	return titles, nil
}

// CourseCount returns the number of stored courses.
func (idx *SqliteIndex) CourseCount(ctx context.Context) (int, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	var n int
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&n); err != nil {
		return 0, classify("count", fmt.Errorf("failed to count courses: %w", err))
	}
	return n, nil
}

// HasCourse reports whether a course with exactly this title is stored.
func (idx *SqliteIndex) HasCourse(ctx context.Context, title string) (bool, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	var n int
	err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses WHERE title = ?", title).Scan(&n)
	if err != nil {
		return false, classify("has_course", fmt.Errorf("failed to check course: %w", err))
	}
	return n > 0, nil
}

// ChunkCount returns the number of chunks stored for a course.
func (idx *SqliteIndex) ChunkCount(ctx context.Context, title string) (int, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	var n int
	err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE course_title = ?", title).Scan(&n)
	if err != nil {
		return 0, classify("chunk_count", fmt.Errorf("failed to count chunks: %w", err))
	}
	return n, nil
}

// CourseLink returns the course link, or "" when unset.
func (idx *SqliteIndex) CourseLink(ctx context.Context, title string) (string, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	var link string
	err := idx.db.QueryRowContext(ctx, "SELECT link FROM courses WHERE title = ?", title).Scan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCourseNotFound
	}
	if err != nil {
		return "", classify("course_link", fmt.Errorf("failed to query course link: %w", err))
	}
	return link, nil
}

// LessonLink returns a lesson link, or "" when the lesson is unknown.
func (idx *SqliteIndex) LessonLink(ctx context.Context, title string, number int) (string, error) {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	var link string
	err := idx.db.QueryRowContext(ctx,
		"SELECT link FROM lessons WHERE course_title = ? AND number = ?", title, number).Scan(&link)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify("lesson_link", fmt.Errorf("failed to query lesson link: %w", err))
	}
	return link, nil
}

// Clear deletes all courses, lessons, and chunks.
func (idx *SqliteIndex) Clear(ctx context.Context) error {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()

	for _, table := range []string{"chunks", "lessons", "courses"} {
		if _, err := idx.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return classify("clear", fmt.Errorf("failed to clear %s: %w", table, err))
		}
	}

	idx.mu.Lock()
	idx.titles = dsa.NewTitleIndex()
	idx.mu.Unlock()
	return nil
}

// Ping checks that the database is reachable.
func (idx *SqliteIndex) Ping(ctx context.Context) error {
	ctx, cancel := idx.withTimeout(ctx)
	defer cancel()
	return classify("ping", idx.db.PingContext(ctx))
}

// ChunkID builds the stable chunk identifier "Title_With_Underscores_<idx>".
func ChunkID(courseTitle string, index int) string {
	return strings.ReplaceAll(courseTitle, " ", "_") + "_" + strconv.Itoa(index)
}

// Fingerprint returns the content hash used to deduplicate chunks.
func Fingerprint(content string) string {
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}

// Verify SqliteIndex implements Index
var _ Index = (*SqliteIndex)(nil)
