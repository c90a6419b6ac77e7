package store

// Session is the lightweight per-conversation state kept in process memory.
// The engine itself is stateless across requests; this only carries what the
// transport layer wants to remember between turns.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Persona   string `json:"persona"`    // last persona selected for this session
	LastQuery string `json:"last_query"` // last user-supplied query text
	Turns     int    `json:"turns"`      // completed chat turns
}
