package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerResolvesBuiltins(t *testing.T) {
	m := NewManager()

	for _, name := range []string{"clinical_advisor", "technical_expert", "sales_assistant", "default"} {
		p := m.Get(name)
		require.NotNil(t, p, "missing builtin persona %s", name)
		assert.Equal(t, name, p.Name())
	}
}

func TestManagerUnknownAndEmptyNames(t *testing.T) {
	m := NewManager()

	assert.Nil(t, m.Get(""))
	assert.Nil(t, m.Get("no_such_persona"))
}

func TestManagerAllKeepsRegistrationOrder(t *testing.T) {
	m := NewManager()

	all := m.All()
	require.Len(t, all, 4)
	assert.Equal(t, "clinical_advisor", all[0].Name())
	assert.Equal(t, "default", all[3].Name())
}

func TestManagerRegisterReplaces(t *testing.T) {
	m := NewManager()
	m.Register(&Config{PersonaName: "default", Temp: 0.9})

	assert.Len(t, m.All(), 4, "replacing does not grow the set")
	assert.Equal(t, 0.9, m.Get("default").Temperature())
}

func TestConfigPromptModifiers(t *testing.T) {
	c := &Config{
		PersonaName:          "test",
		SystemPromptModifier: "You are terse.",
		UserPromptModifier:   "Answer in one line.",
		SearchQueryPrefix:    "summary",
	}

	system := c.ModifySystemPrompt("Base system.")
	assert.True(t, strings.HasPrefix(system, "You are terse."))
	assert.Contains(t, system, "Base system.")

	user := c.ModifyUserPrompt("Base user.")
	assert.True(t, strings.HasPrefix(user, "Base user."))
	assert.True(t, strings.HasSuffix(user, "Answer in one line."))

	assert.Equal(t, "summary what is X", c.ModifySearchQuery("what is X"))
}

func TestConfigEmptyModifiersPassThrough(t *testing.T) {
	c := &Config{PersonaName: "plain"}

	assert.Equal(t, "base", c.ModifySystemPrompt("base"))
	assert.Equal(t, "base", c.ModifyUserPrompt("base"))
	assert.Equal(t, "query", c.ModifySearchQuery("query"))
}

func TestBuiltinTemperatures(t *testing.T) {
	m := NewManager()

	assert.Equal(t, 0.2, m.Get("clinical_advisor").Temperature())
	assert.Equal(t, 0.1, m.Get("technical_expert").Temperature())
	assert.Equal(t, 0.3, m.Get("sales_assistant").Temperature())

	assert.False(t, m.Get("technical_expert").IncludeSuggestions())
	assert.True(t, m.Get("clinical_advisor").StrictValidation())
	assert.Equal(t, ShapeStructured, m.Get("technical_expert").Shape())
	assert.Equal(t, ShapePlain, m.Get("sales_assistant").Shape())
}
