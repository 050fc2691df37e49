package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_Empty(t *testing.T) {
	var nilLogin *Login
	assert.True(t, nilLogin.Empty())
	assert.True(t, (&Login{}).Empty())
	assert.False(t, (&Login{Username: "u"}).Empty())
}

func TestImportOptions_QueueFlagIsNotPersisted(t *testing.T) {
	b, err := json.Marshal(ImportOptions{Queue: true, RequiresLogin: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"requires_login":true}`, string(b))
}
