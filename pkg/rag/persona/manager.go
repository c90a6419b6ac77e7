package persona

// Manager holds the available personas and resolves them by name.
type Manager struct {
	personas map[string]Strategy
	order    []string
}

func NewManager() *Manager {
	m := &Manager{
		personas: make(map[string]Strategy),
	}
	for _, p := range defaultPersonas() {
		m.Register(p)
	}
	return m
}

// Register adds a persona. An existing persona with the same name is replaced.
func (m *Manager) Register(p Strategy) {
	if _, exists := m.personas[p.Name()]; !exists {
		m.order = append(m.order, p.Name())
	}
	m.personas[p.Name()] = p
}

// Get resolves a persona by name. Returns nil when the name is unknown or empty,
// which callers treat as "no persona applied".
func (m *Manager) Get(name string) Strategy {
	if name == "" {
		return nil
	}
	return m.personas[name]
}

// All returns personas in registration order.
func (m *Manager) All() []Strategy {
	result := make([]Strategy, 0, len(m.order))
	for _, name := range m.order {
		result = append(result, m.personas[name])
	}
	return result
}

func defaultPersonas() []*Config {
	return []*Config{
		{
			PersonaName:          "clinical_advisor",
			Description:          "Medical applications, patient safety, and clinical best practices",
			Style:                "clinical_advisor",
			SystemPromptModifier: "You are a clinical advisor. Focus on medical applications, patient safety, clinical best practices, and evidence-based recommendations.",
			UserPromptModifier:   "Provide clinical analysis with medical applications and safety considerations.",
			SearchQueryPrefix:    "clinical applications safety",
			Temp:                 0.2,
			ResponseShape:        ShapeStructured,
			Sources:              true,
			Confidence:           true,
			Suggestions:          true,
			Strict:               true,
		},
		{
			PersonaName:          "technical_expert",
			Description:          "Deep technical specifications, compliance, and engineering analysis",
			Style:                "technical_expert",
			SystemPromptModifier: "You are a technical expert. Provide detailed technical specifications, compliance requirements, engineering analysis, and technical troubleshooting.",
			UserPromptModifier:   "Provide comprehensive technical analysis and specifications.",
			SearchQueryPrefix:    "technical specifications compliance",
			Temp:                 0.1,
			ResponseShape:        ShapeStructured,
			Sources:              true,
			Confidence:           true,
			Suggestions:          false,
			Strict:               true,
		},
		{
			PersonaName:          "sales_assistant",
			Description:          "Product benefits, competitive advantages, and value propositions",
			Style:                "sales_assistant",
			SystemPromptModifier: "You are a sales assistant. Focus on product benefits, competitive advantages, value propositions, and ROI. Highlight features that solve customer problems.",
			UserPromptModifier:   "Provide sales-focused analysis with benefits and value propositions.",
			SearchQueryPrefix:    "benefits features value",
			Temp:                 0.3,
			ResponseShape:        ShapePlain,
			Sources:              true,
			Confidence:           false,
			Suggestions:          true,
			Strict:               false,
		},
		{
			PersonaName:          "default",
			Description:          "Neutral product knowledge assistant",
			Style:                "default",
			SystemPromptModifier: "",
			UserPromptModifier:   "",
			SearchQueryPrefix:    "",
			Temp:                 0.2,
			ResponseShape:        ShapePlain,
			Sources:              true,
			Confidence:           true,
			Suggestions:          true,
			Strict:               false,
		},
	}
}
