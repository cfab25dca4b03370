package app

import (
	"os"

	"github.com/specialistvlad/fnnxgo/internal/manifest"
)

// EnvVarStatus reports whether a declared environment variable is set in
// the current process.
type EnvVarStatus struct {
	Name        string
	Description string
	Set         bool
}

// envVarStatus checks every declared variable against the process
// environment. Values are never read into the report.
func envVarStatus(decls []manifest.Var) []EnvVarStatus {
	out := make([]EnvVarStatus, 0, len(decls))
	for _, d := range decls {
		_, set := os.LookupEnv(d.Name)
		out = append(out, EnvVarStatus{Name: d.Name, Description: d.Description, Set: set})
	}
	return out
}
