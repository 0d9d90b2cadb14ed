package kiln

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wzshiming/ctc"
)

type templateFile struct {
	filename string
	content  string
}

func (k *Kiln) buildInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "init",
		Short:         "Initialize an example pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return k.runInit()
		},
	}
}

func (k *Kiln) runInit() error {
	files := []templateFile{
		{filename: "kiln/example/pipeline.yaml", content: pipelineTemplate},
		{filename: "kiln/example/secrets.yaml", content: secretsTemplate},
		{filename: "kiln/example/ci/install.sh", content: installTemplate},
		{filename: "kiln/example/ci/test.sh", content: testTemplate},
		{filename: "kiln/example/ci/upload.sh", content: uploadTemplate},
	}

	// Compute max filename length for aligned output
	maxLen := 0
	for _, f := range files {
		if len(f.filename) > maxLen {
			maxLen = len(f.filename)
		}
	}

	for _, f := range files {
		padding := strings.Repeat(" ", maxLen-len(f.filename))

		if _, err := os.Stat(f.filename); err == nil {
			fmt.Fprintf(k.stdout, "  %s%s   ..%sskipped%s\n", f.filename, padding, ctc.ForegroundYellow, ctc.Reset)
			continue
		}

		if dir := filepath.Dir(f.filename); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(k.stdout, "  %s%s   ..%sfailed%s (%s)\n", f.filename, padding, ctc.ForegroundRed, ctc.Reset, err)
				continue
			}
		}

		if err := os.WriteFile(f.filename, []byte(f.content), 0644); err != nil {
			fmt.Fprintf(k.stdout, "  %s%s   ..%sfailed%s (%s)\n", f.filename, padding, ctc.ForegroundRed, ctc.Reset, err)
			continue
		}

		fmt.Fprintf(k.stdout, "  %s%s   ..%screated%s\n", f.filename, padding, ctc.ForegroundGreen, ctc.Reset)
	}

	return nil
}

var pipelineTemplate = `branches:
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
  TEST_DB: "ci_${CI}"

secrets:
  required: [UPLOAD_TOKEN]

install:
  - ./ci/install.sh

test:
  - run: ./ci/test.sh

on_finish:
  - ./ci/upload.sh
`

var secretsTemplate = `# Secret values override declared env and runner defaults.
# Pass with: kiln run --secrets-file kiln/example/secrets.yaml
UPLOAD_TOKEN: replace-me
`

var installTemplate = `#!/bin/sh
set -e

echo "installing dependencies"
`

var testTemplate = `#!/bin/sh
set -e

echo "running end-to-end tests against $TEST_DB"
`

var uploadTemplate = `#!/bin/sh

echo "uploading artifacts (token: ${UPLOAD_TOKEN:-unset})"
`
