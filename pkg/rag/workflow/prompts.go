package workflow

import (
	"fmt"
	"strings"
)

// structuredFormatInstruction is appended to the generation prompt for
// personas that want sectioned output.
const structuredFormatInstruction = "Structure the response with clear sections: a brief summary, detailed findings, and recommendations."

func buildEvaluationPrompt(query, context string) string {
	var sb strings.Builder
	sb.WriteString("Given the user question and the provided context, determine if the context contains enough information to answer the question.\n\n")
	sb.WriteString(fmt.Sprintf("Question: %s\n", query))
	sb.WriteString(fmt.Sprintf("Context: %s\n\n", context))
	sb.WriteString("Respond with only 'YES' if the context contains the answer, or 'NO' if it doesn't.")
	return sb.String()
}

func buildReformulationPrompt(originalQuery string, searchAttempt int) string {
	var sb strings.Builder
	sb.WriteString("The original query didn't find relevant information. Modify the query to be more specific or use different keywords.\n\n")
	sb.WriteString(fmt.Sprintf("Original query: %s\n", originalQuery))
	sb.WriteString(fmt.Sprintf("Search attempt: %d\n\n", searchAttempt))
	sb.WriteString("Provide a modified query that might find better results:")
	return sb.String()
}

func buildAnswerPrompt(query, context string) string {
	var sb strings.Builder
	sb.WriteString("Answer the user's question based on the provided context. If the context doesn't contain enough information, say so.\n\n")
	sb.WriteString(fmt.Sprintf("Context: %s\n", context))
	sb.WriteString(fmt.Sprintf("Question: %s\n\n", query))
	sb.WriteString("Provide a clear and helpful answer:")
	return sb.String()
}

// buildMultimodalPrompt wraps context and query for the vision model; the
// image itself travels outside the prompt.
func buildMultimodalPrompt(query, context string) string {
	return fmt.Sprintf(
		"Document context: %s\n\nQuery: %s\n\nBased on the provided document context and image, please answer the user's question. If the image contains relevant information, incorporate it into your response.",
		context, query,
	)
}
