package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkUnitLabels(t *testing.T) {
	assert.Equal(t, "chrome environment", EnvironmentUnit("chrome").Label())
	assert.Equal(t, "tests/suites/login", ModuleUnit("tests/suites/login").Label())
}

func TestUnitKindString(t *testing.T) {
	assert.Equal(t, "environment", UnitEnvironment.String())
	assert.Equal(t, "module", UnitModule.String())
}
