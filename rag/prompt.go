package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// TextGuidelines is the prompt used to answer questions over HTTP.
const TextGuidelines = `
You are a The Last of Us Part 2 expert assistant. Use the provided text and images to answer the user's question accurately and comprehensively.

IMPORTANT GUIDELINES:
- Answer directly and concisely - no small talk or greetings.
- If the text contains spoiler warnings (⚠️), include them in your response before revealing spoilers.
- If you don't have that information, state "I don't have that information in the provided context."
- Stick strictly to the provided context - do not add external knowledge.
- For weapon/item locations, include the specific chapter and area mentioned.
- For safe codes, provide both the code and the method to find it.
- For image queries, you must display the images.
- When an image is relevant, include the actual image in the response.

Context: {{.context}}
Question: {{.question}}

Answer:`

// MultimodalGuidelines is the prompt used when images are attached to the request.
const MultimodalGuidelines = `
You are a The Last of Us Part 2 expert assistant. Use the provided text and images to answer the user's question accurately and comprehensively.

IMPORTANT GUIDELINES:
- Answer directly and concisely - no small talk or greetings
- If the context contains spoiler warnings (⚠️), include them in your response before revealing spoilers
- If you don't know the answer from the given context, state "I don't have that information in the provided context"
- Stick strictly to the provided context - do not add external knowledge
- For weapon/item locations, include the specific chapter and area mentioned
- For safe codes, provide both the code and the method to find it
- You may refer to the images to help answer the question.

Context: {{.context}}

Question: {{.question}}

Answer:`

// NoInformation is the answer used when the model returns nothing.
const NoInformation = "I don't have that information in the provided context."

type Assembler struct {
	template prompts.PromptTemplate
}

// NewAssembler parses a template with "context" and "question" variables.
func NewAssembler(template string) (a Assembler, err error) {
	if !strings.Contains(template, ".context") || !strings.Contains(template, ".question") {
		return a, ConfigError("rag: new assembler", fmt.Errorf("template must reference both {{.context}} and {{.question}}"))
	}
	a.template = prompts.NewPromptTemplate(template, []string{"context", "question"})
	if _, err = a.Assemble("question", []string{"context"}); err != nil {
		return a, ConfigError("rag: new assembler", err)
	}
	return a, nil
}

// Assemble joins the context in retrieval order and interpolates it, with the
// question, into the template.
func (a Assembler) Assemble(question string, context []string) (string, error) {
	prompt, err := a.template.Format(map[string]any{
		"context":  strings.Join(context, "\n"),
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to format prompt: %w", err)
	}
	return prompt, nil
}
