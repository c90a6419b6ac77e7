package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"

	// Fixed degradation answers. These exact sentences are part of the
	// contract with the UI, do not reword casually.
	AnswerNotFound = "I couldn't find relevant information to answer your question."
	AnswerBlocked  = "I'm unable to provide that response. Please rephrase your question and I'll do my best to help."
	AnswerError    = "I apologize, but I encountered an error while generating the response."

	DefaultFollowUp = "Please try asking your question again with different wording."

	// Retrieval policy: top-k without a filter, widened fetch when a
	// category filter is active (best 5 kept after filtering).
	SearchTopK         = 5
	SearchFilteredTopK = 8

	MaxSearchAttempts = 3
)
