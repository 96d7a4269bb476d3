package domain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0xAB}, KeySize)
	userKey := bytes.Repeat([]byte{0xCD}, KeySize)

	Zero(masterKey, userKey)

	assert.Equal(t, make([]byte, KeySize), masterKey)
	assert.Equal(t, make([]byte, KeySize), userKey)

	assert.NotPanics(t, func() { Zero() })
	assert.NotPanics(t, func() { Zero(nil, []byte{}) })
}
