package loader

import (
	"errors"
	"testing"
	"time"

	"github.com/kilnci/kiln/kiln/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPipeline = `
branches:
  only: [master]
image: ubuntu-22.04
services:
  - name: mysql
    image: mysql:8
    probe:
      tcp: 127.0.0.1:3306
      timeout: 90s
env:
  CI: "1"
secrets:
  required: [UPLOAD_TOKEN]
install:
  - ./ci/install.sh
test:
  - run: ./ci/test.sh
    dir: ./e2e
on_finish:
  - ./ci/upload.sh
`

func TestParse_ValidPipeline(t *testing.T) {
	l := New()

	pipeline, err := l.Parse([]byte(validPipeline))
	require.NoError(t, err)

	assert.Equal(t, []string{"master"}, pipeline.Branches.Only)
	assert.Equal(t, "ubuntu-22.04", pipeline.Image)
	require.Len(t, pipeline.Services, 1)
	assert.Equal(t, "mysql", pipeline.Services[0].Name)
	assert.Equal(t, "tcp", pipeline.Services[0].Probe.Kind())
	assert.Equal(t, 90*time.Second, pipeline.Services[0].Probe.Timeout.Std())
	assert.Equal(t, []string{"UPLOAD_TOKEN"}, pipeline.Secrets.Required)

	stages := pipeline.Stages()
	require.Len(t, stages, 3)
	assert.Equal(t, schema.StageInstall, stages[0].Name)
	assert.Equal(t, schema.PolicyFailFast, stages[0].Policy)
	assert.Equal(t, schema.StageTest, stages[1].Name)
	assert.Equal(t, "./ci/test.sh", stages[1].Steps[0].Run)
	assert.Equal(t, "./e2e", stages[1].Steps[0].Dir)
	assert.Equal(t, schema.StageFinish, stages[2].Name)
	assert.Equal(t, schema.PolicyAlwaysRun, stages[2].Policy)
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	l := New()

	_, err := l.Parse([]byte("instal:\n  - ./oops.sh\n"))
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr), "unknown keys must be a ConfigError, not a crash")
}

func TestParse_NoStages(t *testing.T) {
	l := New()

	_, err := l.Parse([]byte("image: ubuntu-22.04\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stages")
}

func TestParse_EmptyCommand(t *testing.T) {
	l := New()

	_, err := l.Parse([]byte("install:\n  - \"  \"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty command")
}

func TestParse_DuplicateService(t *testing.T) {
	l := New()

	doc := `
services:
  - name: mysql
    probe: {tcp: "127.0.0.1:3306"}
  - name: mysql
    probe: {tcp: "127.0.0.1:3307"}
install:
  - ./ci/install.sh
`
	_, err := l.Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate service "mysql"`)
}

func TestParse_ProbeRequired(t *testing.T) {
	l := New()

	doc := `
services:
  - name: redis
install:
  - ./ci/install.sh
`
	_, err := l.Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no readiness probe")
}

func TestParse_MultipleProbesRejected(t *testing.T) {
	l := New()

	doc := `
services:
  - name: redis
    probe:
      tcp: 127.0.0.1:6379
      http: http://127.0.0.1:6379/ping
install:
  - ./ci/install.sh
`
	_, err := l.Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple probe types")
}

func TestParse_ScalarAndMappingSteps(t *testing.T) {
	l := New()

	doc := `
install:
  - make deps
  - run: make build
    dir: ./src
`
	pipeline, err := l.Parse([]byte(doc))
	require.NoError(t, err)

	require.Len(t, pipeline.Install, 2)
	assert.Equal(t, schema.Step{Run: "make deps"}, pipeline.Install[0])
	assert.Equal(t, schema.Step{Run: "make build", Dir: "./src"}, pipeline.Install[1])
}

func TestParse_InvalidDuration(t *testing.T) {
	l := New()

	doc := `
services:
  - name: mysql
    probe:
      tcp: 127.0.0.1:3306
      timeout: ninety
install:
  - ./ci/install.sh
`
	_, err := l.Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
