package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/coursebot/model"
	"github.com/richinex/coursebot/vectorindex"
)

// OutlineTool returns a course's title, link, instructor, and lesson list.
type OutlineTool struct {
	index vectorindex.Index
}

// NewOutlineTool creates an outline tool.
func NewOutlineTool(index vectorindex.Index) *OutlineTool {
	return &OutlineTool{index: index}
}

// Definition implements Tool.
func (t *OutlineTool) Definition() Definition {
	return Definition{
		Name:        OutlineToolName,
		Description: "Get the complete outline of a course: title, link, instructor and every lesson",
		Params: []Param{
			{Name: "course_name", Type: TypeString, Required: true,
				Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')"},
		},
	}
}

// Execute implements Tool.
func (t *OutlineTool) Execute(ctx context.Context, params Params) (Result, error) {
	name, _ := params.String("course_name")

	title, ok, err := t.index.ResolveCourseTitle(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return TextResult(noCourseText(name)), nil
	}

	course, err := t.index.Outline(ctx, title)
	if errors.Is(err, vectorindex.ErrCourseNotFound) {
		return TextResult(noCourseText(name)), nil
	}
	if err != nil {
		return Result{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", course.Title)
	if course.Link != "" {
		fmt.Fprintf(&b, "Link: %s\n", course.Link)
	}
	if course.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", course.Instructor)
	}
	fmt.Fprintf(&b, "Lessons (%d total):", len(course.Lessons))
	for _, l := range course.Lessons {
		fmt.Fprintf(&b, "\n- Lesson %d: %s", l.Number, l.Title)
	}

	return Result{
		Text:    b.String(),
		Sources: []model.SourceRecord{{Course: course.Title, Link: course.Link}},
	}, nil
}

// RegisterRetrievalTools registers the search and outline tools on r.
func RegisterRetrievalTools(r *Registry, index vectorindex.Index, topK int) error {
	if err := r.Register(NewSearchTool(index, topK)); err != nil {
		return err
	}
	return r.Register(NewOutlineTool(index))
}
