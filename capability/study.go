package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/creastat/assistant"
	"github.com/creastat/assistant/llm"
)

var studentPrompts = map[string]string{
	"note":      "You are an educational assistant writing notes for %s (%s). Keep content concise, well-structured with headings and bullet points. Output plain text.",
	"planner":   "You are a study planner assistant for %s (%s). Produce a realistic daily planner with time blocks, priorities and short tasks.",
	"timetable": "You are a timetable creator for %s (%s). Output a clear timetable with periods, times and subjects.",
	"task":      "You are a task organiser for %s (%s). Turn the request into a prioritised checklist with deadlines where given.",
}

var teacherPrompts = map[string]string{
	"lesson_plan":   "You are a lesson-planning assistant for %s (%s). Prepare a lesson plan with learning objectives, materials, time-split activities and homework.",
	"exam_paper":    "You are a teaching assistant for %s (%s). Prepare a question paper with sections, marks and difficulty levels.",
	"grading_sheet": "You are a teaching assistant for %s (%s). Prepare a grading sheet with criteria, weightings and a marks table.",
	"class_planner": "You are a lesson-planning assistant for %s (%s). Prepare a detailed plan for a single period class including objectives, materials, time-split activities and reflection tasks.",
	"teacher_note":  "You are a teaching assistant for %s (%s). Write a classroom explanation with examples and a simple summary.",
}

// StudyKinds lists the intents served by the study handler.
func StudyKinds() []string {
	return []string{"note", "planner", "timetable", "task"}
}

// TeacherKinds lists the intents served by the teaching handler.
func TeacherKinds() []string {
	return []string{"lesson_plan", "exam_paper", "grading_sheet", "class_planner", "teacher_note"}
}

// Study writes student material as a stamped text file.
type Study struct {
	llm llm.Completer
	saver
}

// NewStudy creates the study material handler.
func NewStudy(c llm.Completer, store ArtifactStore, now func() time.Time) *Study {
	return &Study{llm: c, saver: newSaver(store, now)}
}

func (h *Study) Handle(ctx context.Context, req Request) (Result, error) {
	kind := req.Intent.Name
	tmpl, ok := studentPrompts[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown study intent %q", assistant.ErrValidation, kind)
	}
	system := fmt.Sprintf(tmpl,
		paramOr(req.Intent, "student_name", "the student"),
		paramOr(req.Intent, "student_level", "school level"))

	content, err := complete(ctx, h.llm, system, req.Prompt)
	if err != nil {
		return Result{}, err
	}

	now := h.now()
	file := fmt.Sprintf("Title/Task: %s\nGenerated: %s\n\n%s\n", req.Prompt, now.UTC().Format(time.RFC3339), content)
	return h.save(ctx, req.Slug, stampedName(kind, now), []byte(file))
}

// Teacher writes teaching material for a named teacher and subject.
type Teacher struct {
	llm llm.Completer
	saver
}

// NewTeacher creates the teaching material handler.
func NewTeacher(c llm.Completer, store ArtifactStore, now func() time.Time) *Teacher {
	return &Teacher{llm: c, saver: newSaver(store, now)}
}

func (h *Teacher) Handle(ctx context.Context, req Request) (Result, error) {
	kind := req.Intent.Name
	tmpl, ok := teacherPrompts[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown teaching intent %q", assistant.ErrValidation, kind)
	}
	name := paramOr(req.Intent, "teacher_name", "the teacher")
	subject := paramOr(req.Intent, "subject", "General")

	user := req.Prompt
	switch kind {
	case "exam_paper":
		user += " Difficulty: " + paramOr(req.Intent, "difficulty", "moderate")
	case "class_planner":
		user += " Duration: " + paramOr(req.Intent, "duration", "45 minutes")
	}

	content, err := complete(ctx, h.llm, fmt.Sprintf(tmpl, name, subject), user)
	if err != nil {
		return Result{}, err
	}

	now := h.now()
	file := fmt.Sprintf("Teacher: %s (%s)\nGenerated: %s\n\n%s\n", name, subject, now.UTC().Format(time.RFC3339), content)
	return h.save(ctx, req.Slug, stampedName(kind, now), []byte(file))
}

func paramOr(in assistant.Intent, key, def string) string {
	if v := strings.TrimSpace(in.Param(key)); v != "" {
		return v
	}
	return def
}
