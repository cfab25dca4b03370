package identity

import (
	"context"
	"testing"

	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity(t *testing.T) {
	r := pyfunc.NewRegistry()
	(&Module{}).Register(r)
	assert.Equal(t, []string{ClassName}, r.Names())

	sandbox, err := pyfunc.NewContext(t.TempDir(), nil)
	require.NoError(t, err)
	inst := pyfunc.NewInstance("id", &pyfunc.Variant{ClassName: ClassName}, r, sandbox)

	in := value.Map{"x": value.MustNative([]any{1.0, 2.0}), "label": value.String("a")}
	out, err := inst.Compute(context.Background(), in, value.Map{"threshold": value.Number(0.5)})
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	async, err := inst.ComputeAsync(context.Background(), in, nil).Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Equal(async))

	out["x"] = value.Null()
	assert.False(t, in["x"].IsNull(), "caller inputs must not be aliased")
}
