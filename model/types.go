// Package model provides domain types shared across packages.
package model

import (
	"encoding/json"
	"fmt"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session. Turns are ordered by position, not time.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn creates a user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn creates an assistant turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// SourceRecord attributes part of an answer to course material.
type SourceRecord struct {
	Course string `json:"course"`
	Lesson *int   `json:"lesson,omitempty"`
	Link   string `json:"link,omitempty"`
}

// Label renders "Course - Lesson N", or just the course when no lesson is set.
func (s SourceRecord) Label() string {
	if s.Lesson == nil {
		return s.Course
	}
	return fmt.Sprintf("%s - Lesson %d", s.Course, *s.Lesson)
}

// MarshalJSON adds the rendered label next to the structured fields.
func (s SourceRecord) MarshalJSON() ([]byte, error) {
	type plain SourceRecord
	return json.Marshal(struct {
		plain
		Label string `json:"label"`
	}{plain: plain(s), Label: s.Label()})
}

// Course is the catalog entry for one course.
type Course struct {
	Title      string   `json:"title" yaml:"title"`
	Link       string   `json:"link,omitempty" yaml:"link"`
	Instructor string   `json:"instructor,omitempty" yaml:"instructor"`
	Lessons    []Lesson `json:"lessons" yaml:"lessons"`
}

// Lesson is one numbered lesson of a course.
type Lesson struct {
	Number int    `json:"number" yaml:"number"`
	Title  string `json:"title" yaml:"title"`
	Link   string `json:"link,omitempty" yaml:"link"`
}

// Chunk is a unit of indexed course text.
type Chunk struct {
	CourseTitle  string
	LessonNumber *int
	Index        int
	Content      string
}

// ToolCall contains metrics about a tool invocation.
type ToolCall struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
