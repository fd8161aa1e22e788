package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/kaptinlin/jsonschema"
)

// replySchema constrains the synthesis reply to an answer string plus the
// list of categories the model says it relied on.
const replySchema = `{
	"type": "object",
	"properties": {
		"answer": {"type": "string", "minLength": 1},
		"cited_categories": {
			"type": "array",
			"items": {"type": "string", "enum": ["assets", "liabilities", "investments", "transactions", "savings", "income"]}
		}
	},
	"required": ["answer"]
}`

var compiledReplySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	return compiler.Compile([]byte(replySchema))
})

// parseSynthesisReply validates raw model output and checks that every cited
// category is one the prompt actually contained.
func parseSynthesisReply(raw string, allowed domain.CategorySet) (*synthesisReply, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("parseSynthesisReply: empty reply: %w", domain.ErrModelError)
	}

	schema, err := compiledReplySchema()
	if err != nil {
		return nil, fmt.Errorf("parseSynthesisReply: compile schema: %w", err)
	}
	if result := schema.ValidateJSON([]byte(clean)); !result.IsValid() {
		return nil, fmt.Errorf("parseSynthesisReply: schema validation failed: %v: %w", result.Errors, domain.ErrModelError)
	}

	var reply synthesisReply
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return nil, fmt.Errorf("parseSynthesisReply: unmarshal JSON: %v: %w", err, domain.ErrModelError)
	}
	reply.Answer = strings.TrimSpace(reply.Answer)
	if reply.Answer == "" {
		return nil, fmt.Errorf("parseSynthesisReply: blank answer: %w", domain.ErrModelError)
	}

	for _, name := range reply.CitedCategories {
		c, err := domain.ParseCategory(name)
		if err != nil || !allowed.Has(c) {
			return nil, fmt.Errorf("parseSynthesisReply: reply cites %q outside the provided data: %w", name, domain.ErrModelError)
		}
	}
	return &reply, nil
}

// cleanModelJSON strips Markdown fences and any prose around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
