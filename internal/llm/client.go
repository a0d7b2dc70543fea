// Package llm provides the AI-completion collaborator: a single-call
// Complete interface with Anthropic and OpenAI backends and a canned
// fallback when no provider key is configured.
package llm

import "context"

// TaskType selects the specialized system prompt for a request
type TaskType string

const (
	TaskCodeGeneration TaskType = "code_generation"
	TaskCodeReview     TaskType = "code_review"
	TaskDebugging      TaskType = "debugging"
	TaskArchitecture   TaskType = "architecture"
)

// CompletionRequest describes one completion call
type CompletionRequest struct {
	Prompt       string
	Context      string
	Task         TaskType
	SystemPrompt string
	MaxTokens    int
}

// Completion is the provider's answer
type Completion struct {
	Text       string
	TokensUsed int
}

// Client produces completions. Callers are responsible for bounding the
// call with a context timeout.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
	ModelName() string
}

// SystemPrompt returns the specialized system prompt for a task type,
// defaulting to code generation.
func SystemPrompt(task TaskType) string {
	if p, ok := systemPrompts[task]; ok {
		return p
	}
	return systemPrompts[TaskCodeGeneration]
}

var systemPrompts = map[TaskType]string{
	TaskCodeGeneration: `You are an expert programming assistant. You help with:
- Generating clean, optimized code
- Explaining programming concepts
- Proposing solutions to technical problems
- Following development best practices
Always provide commented code.`,

	TaskCodeReview: `You are a code review expert. Analyze the provided code and:
- Identify potential problems
- Suggest improvements
- Check security and performance
- Propose refactorings where useful
Be constructive and educational in your comments.`,

	TaskDebugging: `You are a debugging expert. Help to:
- Identify bugs in code
- Explain errors and their causes
- Propose fixes
- Suggest debugging techniques
Provide clear explanations and practical solutions.`,

	TaskArchitecture: `You are an expert software architect. Help to:
- Design application architecture
- Choose appropriate technologies
- Optimize performance
- Plan for scalability
Provide strategic advice and diagrams where useful.`,
}
