package llm

import (
	"fmt"
	"strings"
)

// BuildSemanticGradingPrompt builds the prompt for judging a free-text
// answer against one or more reference answers. The response contract is a
// JSON object: {"similarity": <0..1>, "isCorrect": <bool>,
// "explanation": "<string>", "confidence": <0..1>}.
func BuildSemanticGradingPrompt(question string, references []string, submitted string) CompletionRequest {
	var sb strings.Builder
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nReference answers (any one fully correct):\n")
	for i, ref := range references {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, ref)
	}
	sb.WriteString("\nStudent answer:\n")
	sb.WriteString(submitted)

	return CompletionRequest{
		SystemPrompt: "You grade short free-text answers. Compare the student answer " +
			"to the reference answers on meaning, not wording. Ignore spelling and " +
			"phrasing differences; penalize missing or wrong facts. Respond with a JSON " +
			`object: {"similarity": <number 0 to 1>, "isCorrect": <true|false>, ` +
			`"explanation": "<one sentence>", "confidence": <number 0 to 1>}.`,
		UserPrompt:   sb.String(),
		JSONResponse: true,
		Temperature:  0.0,
	}
}

// BuildGenerationPrompt builds the prompt for generating assessment items
// on a topic. The response contract is a JSON object holding an "items"
// array; each element mirrors the parsed-item payload.
func BuildGenerationPrompt(topic string, count int, difficulties []int) CompletionRequest {
	diffDesc := "a spread of difficulties from 1 (easiest) to 5 (hardest)"
	if len(difficulties) > 0 {
		parts := make([]string, len(difficulties))
		for i, d := range difficulties {
			parts[i] = fmt.Sprintf("%d", d)
		}
		diffDesc = "difficulties " + strings.Join(parts, ", ")
	}

	userPrompt := fmt.Sprintf(
		"Generate %d assessment items on the topic %q targeting %s.",
		count, topic, diffDesc,
	)

	return CompletionRequest{
		SystemPrompt: "You author assessment items for an adaptive learning platform. " +
			"Allowed types: mcq, fill_blank, short_answer, match, reorder. Respond with a " +
			`JSON object: {"items": [...]}. Each item: {"type": "...", "question": "...", ` +
			`"choices": ["..."], "answer": {...}, "difficulty": <1-5>, "hints": ["..."], ` +
			`"explanation": "..."}. Answer payloads by type: mcq and fill_blank use ` +
			`{"text": "..."}; short_answer uses {"texts": ["..."]}; match uses ` +
			`{"pairs": [{"key": "...", "value": "..."}]}; reorder uses ` +
			`{"sequence": ["..."]}. For mcq the answer text must equal one choice.`,
		UserPrompt:   userPrompt,
		JSONResponse: true,
		Temperature:  0.7,
	}
}

// BuildStudyNotesPrompt builds the prompt for revision notes on a topic,
// optionally steered toward the learner's weak areas. Plain markdown out.
func BuildStudyNotesPrompt(topic string, focus []string) CompletionRequest {
	userPrompt := fmt.Sprintf("Write concise revision notes on %q.", topic)
	if len(focus) > 0 {
		userPrompt += " Emphasize: " + strings.Join(focus, ", ") + "."
	}

	return CompletionRequest{
		SystemPrompt: "You write study notes for students preparing for an assessment. " +
			"Use markdown with short sections, key definitions, and two or three worked " +
			"examples. Keep it under 600 words.",
		UserPrompt:  userPrompt,
		Temperature: 0.5,
	}
}
