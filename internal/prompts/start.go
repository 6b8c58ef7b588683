// Package prompts implements MCP prompt handlers for the devlog server.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the devlog-start MCP prompt.
// It guides the AI to check for related work and open a devlog entry
// before coding.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("devlog-start",
		mcp.WithPromptDescription(
			"Start tracked work on a task. "+
				"Looks for related devlog entries first, then opens a new entry "+
				"and an agent session for it.",
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What you are about to work on"),
		),
		mcp.WithArgument("agent_id",
			mcp.ArgumentDescription("Agent identifier for the session. Default: claude-code"),
		),
	)
}

// Handle processes the devlog-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := req.Params.Arguments["task"]
	agentID := req.Params.Arguments["agent_id"]
	if agentID == "" {
		agentID = "claude-code"
	}

	taskLine := "Ask me what I want to work on first."
	if task != "" {
		taskLine = fmt.Sprintf("The task is: %q.", task)
	}

	return &mcp.GetPromptResult{
		Description: "Start tracked work",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					taskLine + "\n\n" +
						"1. Run `project_current` and make sure the right project is selected\n" +
						"2. Run `devlog_discover_related` with the task description\n" +
						"3. If an open entry already covers it, continue that one with `devlog_get`; otherwise create one with `devlog_create`\n" +
						fmt.Sprintf("4. Start an agent session with `agent_session_start` (agent_id %q, devlog_id set to the entry)\n", agentID) +
						"5. Log progress with `devlog_add_note` as you go and finish with `devlog_complete` and `agent_session_end`",
				),
			},
		},
	}, nil
}
