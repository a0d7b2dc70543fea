package llm

import "context"

// FallbackClient answers with canned guidance when no provider API key
// is configured. Token usage is estimated from prompt length, roughly
// four characters per token.
type FallbackClient struct{}

// NewFallbackClient creates a keyless fallback client
func NewFallbackClient() Client {
	return &FallbackClient{}
}

// ModelName identifies the fallback in persisted records
func (c *FallbackClient) ModelName() string {
	return "fallback"
}

// Complete returns the canned guidance for the request's task type,
// defaulting to code generation for unknown tasks
func (c *FallbackClient) Complete(_ context.Context, req *CompletionRequest) (*Completion, error) {
	prompt := ""
	text := fallbackCodeGeneration
	if req != nil {
		prompt = req.Prompt
		switch req.Task {
		case TaskCodeReview:
			text = fallbackCodeReview
		case TaskDebugging:
			text = fallbackDebugging
		case TaskArchitecture:
			text = fallbackArchitecture
		}
	}

	return &Completion{
		Text:       text,
		TokensUsed: len(prompt) / 4,
	}, nil
}

const fallbackCodeGeneration = `No AI provider is configured. Set an Anthropic or OpenAI API key to enable full code generation.

General guidance in the meantime:

1. Analyze the problem: break your task into smaller steps
2. Choose the right tools: pick an appropriate language and framework
3. Write clean code: use explicit names and comment your code
4. Test regularly: add unit and integration tests`

const fallbackDebugging = `No AI provider is configured. General debugging techniques:

1. Trace execution with targeted logging
2. Check data types and nil values
3. Examine the call stack on errors
4. Use a debugger with breakpoints
5. Reproduce with the simplest possible input

Common culprits: undefined variables, syntax errors, scoping problems, flawed business logic.`

const fallbackCodeReview = `No AI provider is configured. A general review checklist:

- Readability and naming conventions
- Error handling
- Input validation and security
- Algorithmic complexity
- Unit test coverage
- Documentation`

const fallbackArchitecture = `No AI provider is configured. General architecture guidance:

1. Start from the domain: identify the core entities and their lifecycles
2. Separate concerns: keep transport, business logic and persistence apart
3. Choose boring technology: prefer tools your team already operates
4. Plan for scale where it is cheap: stateless services, idempotent operations
5. Measure before optimizing: add observability from the first deployment`
