package app

import (
	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/modules/artifactsum"
	"github.com/specialistvlad/fnnxgo/modules/identity"
)

// coreModules is the definitive list of all plugin modules that are
// compiled into the fnnx binary.
var coreModules = []pyfunc.Module{
	&identity.Module{},
	&artifactsum.Module{},
}
