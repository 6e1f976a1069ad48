package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Duration(30 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"30s"`, string(b))

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"5m"`), &d))
	assert.Equal(t, 5*time.Minute, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Equal(t, Duration(0), d)
}

func TestDuration_JSONInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"invalid string", `"soon"`},
		{"number", `30`},
		{"boolean", `true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var d Duration
			assert.Error(t, json.Unmarshal([]byte(tt.input), &d))
		})
	}
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Retry Duration `yaml:"retry"`
	}

	b, err := yaml.Marshal(wrapper{Retry: Duration(45 * time.Second)})
	require.NoError(t, err)
	assert.Contains(t, string(b), "retry: 45s")

	var w wrapper
	require.NoError(t, yaml.Unmarshal([]byte("retry: 2m"), &w))
	assert.Equal(t, Duration(2*time.Minute), w.Retry)

	assert.Error(t, yaml.Unmarshal([]byte("retry: [1, 2]"), &w))
	assert.Error(t, yaml.Unmarshal([]byte("retry: 300"), &w))
}
