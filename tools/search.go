package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/coursebot/model"
	"github.com/richinex/coursebot/vectorindex"
)

// Names the model uses to call the retrieval tools.
const (
	SearchToolName  = "search_course_content"
	OutlineToolName = "get_course_outline"
)

// SearchTool searches course material with optional course and lesson filters.
type SearchTool struct {
	index vectorindex.Index
	topK  int
}

// NewSearchTool creates a search tool returning at most topK hits.
func NewSearchTool(index vectorindex.Index, topK int) *SearchTool {
	if topK <= 0 {
		topK = vectorindex.DefaultTopK
	}
	return &SearchTool{index: index, topK: topK}
}

// Definition implements Tool.
func (t *SearchTool) Definition() Definition {
	return Definition{
		Name:        SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		Params: []Param{
			{Name: "query", Type: TypeString, Required: true,
				Description: "What to search for in the course content"},
			{Name: "course_name", Type: TypeString,
				Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')"},
			{Name: "lesson_number", Type: TypeInteger,
				Description: "Specific lesson number to search within (e.g. 1, 2, 3)"},
		},
	}
}

// Execute implements Tool.
func (t *SearchTool) Execute(ctx context.Context, params Params) (Result, error) {
	query, _ := params.String("query")
	courseName, hasCourse := params.String("course_name")

	var filter vectorindex.Filter
	if hasCourse {
		title, ok, err := t.index.ResolveCourseTitle(ctx, courseName)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return TextResult(noCourseText(courseName)), nil
		}
		filter.CourseTitle = title
	}
	if n, ok := params.Int("lesson_number"); ok {
		filter.LessonNumber = &n
	}

	hits, err := t.index.Search(ctx, query, filter, t.topK)
	if err != nil && !vectorindex.IsKind(err, vectorindex.KindEmptyIndex) {
		return Result{}, err
	}
	if len(hits) == 0 {
		return TextResult(noContentText(filter)), nil
	}

	blocks := make([]string, 0, len(hits))
	sources := make([]model.SourceRecord, 0, len(hits))
	for _, hit := range hits {
		src := model.SourceRecord{Course: hit.CourseTitle, Lesson: hit.LessonNumber, Link: hit.Link}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", src.Label(), hit.Content))
		sources = append(sources, src)
	}
	return Result{Text: strings.Join(blocks, "\n\n"), Sources: sources}, nil
}

func noCourseText(name string) string {
	return fmt.Sprintf("No course found matching '%s'", name)
}

func noContentText(filter vectorindex.Filter) string {
	var b strings.Builder
	b.WriteString("No relevant content found")
	if filter.CourseTitle != "" {
		fmt.Fprintf(&b, " in course '%s'", filter.CourseTitle)
	}
	if filter.LessonNumber != nil {
		fmt.Fprintf(&b, " in lesson %d", *filter.LessonNumber)
	}
	b.WriteString(".")
	return b.String()
}

