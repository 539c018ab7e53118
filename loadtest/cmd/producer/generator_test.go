package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_ValidOnly(t *testing.T) {
	t.Parallel()
	gen := newGenerator(42, 3, 0, 0)
	validator := pipeline.NewValidator()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	keys := make(map[string]bool)
	for range 50 {
		tenant, value, err := gen.next(now)
		require.NoError(t, err)

		env, err := pipeline.Decode(value)
		require.NoError(t, err, string(value))
		require.NoError(t, validator.Validate(env), string(value))
		assert.Equal(t, tenant, env.TenantID)
		assert.False(t, keys[env.IdempotencyKey], "idempotency keys are unique without duplicates")
		keys[env.IdempotencyKey] = true
	}
}

func TestGenerator_InvalidOnly(t *testing.T) {
	t.Parallel()
	gen := newGenerator(7, 2, 1, 0)
	validator := pipeline.NewValidator()

	for range 50 {
		_, value, err := gen.next(time.Now())
		require.NoError(t, err)

		env, err := pipeline.Decode(value)
		if err == nil {
			err = validator.Validate(env)
		}
		assert.Error(t, err, string(value))
	}
}

func TestGenerator_DuplicatesReuseKeys(t *testing.T) {
	t.Parallel()
	gen := newGenerator(1, 1, 0, 1)

	var keys []string
	for range 5 {
		_, value, err := gen.next(time.Now())
		require.NoError(t, err)
		var env struct {
			IdempotencyKey string `json:"idempotency_key"`
		}
		require.NoError(t, json.Unmarshal(value, &env))
		keys = append(keys, env.IdempotencyKey)
	}

	for _, k := range keys[1:] {
		assert.Equal(t, keys[0], k)
	}
}
