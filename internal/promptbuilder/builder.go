// Package promptbuilder produces the agent's input as data, never
// instructions: prompts are a pure, deterministic function of (task,
// minimal state snapshot) so identical inputs yield identical output
// bytes (spec.md §4.3).
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/archonops/supervisor/internal/model"
)

// Prompt is a fully assembled dispatch input, plus the feature tag that
// was (or would be) prefixed when starting a fresh session.
type Prompt struct {
	Text       string
	TaskType   model.TaskType
	FeatureTag string
}

// Build assembles the deterministic task-dispatch prompt described in
// spec.md §4.3: snapshot context, task-type strategy, and output
// contract, in that fixed order. sandboxDir is the resolved working
// directory to fall back to when the task carries no override.
func Build(t *model.Task, state *model.SupervisorState, sandboxDir string) Prompt {
	taskType := DetectTaskType(t)
	strat := strategyFor(taskType)
	snap := BuildSnapshot(t, state, sandboxDir)

	var b strings.Builder

	fmt.Fprintf(&b, "# Task %s\n\n", t.TaskID)
	fmt.Fprintf(&b, "Intent: %s\n\n", t.Intent)
	if t.Instructions != "" {
		fmt.Fprintf(&b, "Instructions:\n%s\n\n", t.Instructions)
	}
	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	writeSnapshot(&b, snap)
	writeStrategy(&b, strat)

	return Prompt{Text: b.String(), TaskType: taskType}
}

func writeSnapshot(b *strings.Builder, snap Snapshot) {
	b.WriteString("## Context\n\n")
	fmt.Fprintf(b, "Project: %s\n", snap.ProjectID)
	if snap.SandboxDir != "" {
		fmt.Fprintf(b, "Working directory: %s\n", snap.SandboxDir)
	}
	if snap.GoalDescription != "" {
		fmt.Fprintf(b, "Goal: %s\n", snap.GoalDescription)
	}
	if snap.LastTaskID != "" {
		fmt.Fprintf(b, "Last task: %s\n", snap.LastTaskID)
	}
	if len(snap.RecentCompleted) > 0 {
		b.WriteString("\nRecently completed tasks:\n")
		for _, c := range snap.RecentCompleted {
			status := "failed"
			if c.Success {
				status = "succeeded"
			}
			fmt.Fprintf(b, "- [%s] %s (%s): %s\n", c.CompletedAt, c.TaskID, status, c.Intent)
		}
	}
	if len(snap.Blockers) > 0 {
		b.WriteString("\nActive blockers:\n")
		for _, blocker := range snap.Blockers {
			if snap.BlockerDetails && blocker.Reason != "" {
				fmt.Fprintf(b, "- %s (blocked %s): %s\n", blocker.TaskID, blocker.BlockedAt, blocker.Reason)
			} else {
				fmt.Fprintf(b, "- %s (blocked %s)\n", blocker.TaskID, blocker.BlockedAt)
			}
		}
	}
	b.WriteString("\n")
}

func writeStrategy(b *strings.Builder, strat strategy) {
	if len(strat.Rules) > 0 {
		b.WriteString("## Rules\n\n")
		for _, r := range strat.Rules {
			fmt.Fprintf(b, "- %s\n", r)
		}
		b.WriteString("\n")
	}
	if len(strat.Guidelines) > 0 {
		b.WriteString("## Guidelines\n\n")
		for _, g := range strat.Guidelines {
			fmt.Fprintf(b, "- %s\n", g)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Output format\n\n")
	b.WriteString("Respond with exactly one JSON object matching this shape:\n\n")
	b.WriteString(strat.OutputFormat)
	b.WriteString("\n")
}

// WithFeatureTag prefixes the prompt with the `[Feature: <id>]` tag used
// by session discovery (spec.md §4.4), and records the tag separately so
// callers can strip it back out of echoed input.
func WithFeatureTag(p Prompt, featureID string) Prompt {
	tag := "[Feature: " + featureID + "]\n\n"
	p.Text = tag + p.Text
	p.FeatureTag = tag
	return p
}
