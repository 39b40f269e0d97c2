package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greatowl/receptionist/internal/session"
)

func TestKeyDependsOnRoleAndContent(t *testing.T) {
	a := []session.Message{{Role: session.RoleUser, Content: "hi"}}
	b := []session.Message{{Role: session.RoleAssistant, Content: "hi"}}
	c := []session.Message{{Role: session.RoleUser, Content: "hi"}}

	assert.NotEqual(t, Key(a), Key(b))
	assert.Equal(t, Key(a), Key(c))
}

func TestGetPut(t *testing.T) {
	c := New()
	key := Key([]session.Message{{Role: session.RoleUser, Content: "hi"}})

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, "hello")
	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "hello", got)
}
