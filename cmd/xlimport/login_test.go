// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUser struct {
	user string
	err  error
}

func (s stubUser) LoggedUser(context.Context) (string, error) { return s.user, s.err }

func TestVerifyLogin(t *testing.T) {
	user, err := verifyLogin(context.Background(), stubUser{user: "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user)

	_, err = verifyLogin(context.Background(), stubUser{user: "Guest"})
	assert.ErrorContains(t, err, "did not accept")

	_, err = verifyLogin(context.Background(), stubUser{err: errors.New("403")})
	assert.ErrorContains(t, err, "check credentials")
}

func TestPromptLine(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("  abc123 \nsecret\n"))

	assert.Equal(t, "abc123", promptLine(in, &out, "API key: "))
	assert.Equal(t, "secret", promptLine(in, &out, "API secret: "))
	assert.Equal(t, "", promptLine(in, &out, "again: "))
	assert.Equal(t, "API key: API secret: again: ", out.String())
}
