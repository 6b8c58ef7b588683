package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the devlog-status MCP prompt.
// It instructs the AI to summarize the current project's work.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("devlog-status",
		mcp.WithPromptDescription(
			"Check the status of the current project. "+
				"Shows open work, what is blocked, recent activity "+
				"and what to pick up next.",
		),
	)
}

// Handle processes the devlog-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Devlog Project Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `devlog_stats` with days=7 to check my project status.\n\n" +
						"Then:\n" +
						"1. Run `devlog_list` with status=in-progress,blocked,in-review and show the open work\n" +
						"2. Highlight anything blocked and why, using `devlog_get` for details\n" +
						"3. Summarize what changed in the last week\n" +
						"4. Tell me what I should pick up next",
				),
			},
		},
	}, nil
}
