package mcp

import "github.com/mark3labs/mcp-go/mcp"

var medicalSearchTool = mcp.NewTool("medical_search",
	mcp.WithDescription("Answer a medical question from the indexed patient information. Returns a Dutch summary with its sources."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("The question, at most 500 characters"),
	),
	mcp.WithString("doctor_instructions",
		mcp.Description("Optional extra instructions from the general practitioner"),
	),
)

var vectorSearchTool = mcp.NewTool("vector_search",
	mcp.WithDescription("Return the raw passages closest to a query, without LLM filtering or summarisation."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
)

var defaultPromptsTool = mcp.NewTool("get_default_system_prompts",
	mcp.WithDescription("Get the default system prompts currently appended to every LLM call."),
)
