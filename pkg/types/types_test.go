package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	in := DebugConfiguration{
		"type": "go",
		"env":  map[string]interface{}{"A": "1", "nested": map[string]interface{}{"B": "2"}},
		"args": []interface{}{"-v", map[string]interface{}{"k": "v"}},
		"tags": []string{"x"},
		"vars": map[string]string{"C": "3"},
		"port": 4711,
	}
	out := in.Clone()
	assert.Equal(t, in, out)

	out["env"].(map[string]interface{})["A"] = "changed"
	out["env"].(map[string]interface{})["nested"].(map[string]interface{})["B"] = "changed"
	out["args"].([]interface{})[0] = "changed"
	out["args"].([]interface{})[1].(map[string]interface{})["k"] = "changed"
	out["tags"].([]string)[0] = "changed"
	out["vars"].(map[string]string)["C"] = "changed"
	out["port"] = 1

	assert.Equal(t, "1", in["env"].(map[string]interface{})["A"])
	assert.Equal(t, "2", in["env"].(map[string]interface{})["nested"].(map[string]interface{})["B"])
	assert.Equal(t, "-v", in["args"].([]interface{})[0])
	assert.Equal(t, "v", in["args"].([]interface{})[1].(map[string]interface{})["k"])
	assert.Equal(t, "x", in["tags"].([]string)[0])
	assert.Equal(t, "3", in["vars"].(map[string]string)["C"])
	assert.Equal(t, 4711, in["port"])
}

func TestCloneOfNilIsWritable(t *testing.T) {
	t.Parallel()

	var c DebugConfiguration
	out := c.Clone()
	out["type"] = "go"
	assert.Equal(t, "go", out.Type())
}
