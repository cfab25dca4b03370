package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/fnnxgo/internal/config"
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/runtime"
	"github.com/specialistvlad/fnnxgo/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. The log level
// is forced to debug; with FNNX_TEST_LOGS=true the captured logs are printed
// when the test ends.
func SetupAppTest(t *testing.T, cfg *config.Model, impls *runtime.Implementations, modules ...pyfunc.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.LogLevel = "debug"

	logBuffer := &testutil.SafeBuffer{}
	testApp := NewApp(logBuffer, cfg, impls, modules...)

	t.Cleanup(func() {
		if os.Getenv("FNNX_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}
