package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katara/internal/driver"
)

const addOneIR = `@0 main () => (i64) {
  {0}
  ret #41:i64
}
`

func writeIR(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	assert.Equal(t, driver.ExitUsageError, run(nil))
}

func TestRunUnknownSubcommand(t *testing.T) {
	assert.Equal(t, driver.ExitUsageError, run([]string{"frob"}))
}

func TestRunHelpSucceeds(t *testing.T) {
	assert.Equal(t, driver.ExitSuccess, run([]string{"-h"}))
}

func TestRunBuildProducesOutputFiles(t *testing.T) {
	dir := t.TempDir()
	file := writeIR(t, dir, "a.ir", addOneIR)
	out := filepath.Join(dir, "prog")

	t.Setenv("KATARA_STDLIB", dir)
	code := run([]string{"build", "-o", out, file})
	require.Equal(t, driver.ExitSuccess, code)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	_, err = os.Stat(out + ".s")
	require.NoError(t, err)
}

func TestRunBuildMissingStdlibFails(t *testing.T) {
	dir := t.TempDir()
	file := writeIR(t, dir, "a.ir", addOneIR)

	t.Setenv("KATARA_STDLIB", "")
	code := run([]string{"build", "-o", filepath.Join(dir, "prog"), file})
	assert.Equal(t, driver.ExitUsageError, code)
}

func TestRunDocListsFuncs(t *testing.T) {
	dir := t.TempDir()
	file := writeIR(t, dir, "a.ir", addOneIR)

	assert.Equal(t, driver.ExitSuccess, run([]string{"doc", file}))
}

func TestRunRunInterpretsProgram(t *testing.T) {
	dir := t.TempDir()
	file := writeIR(t, dir, "a.ir", addOneIR)

	assert.Equal(t, driver.ExitCode(41), run([]string{"run", file}))
}

func TestRunMissingMainFuncFails(t *testing.T) {
	dir := t.TempDir()
	file := writeIR(t, dir, "a.ir", `@0 helper () => (i64) {
  {0}
  ret #0:i64
}
`)

	assert.Equal(t, driver.ExitNoMainPackage, run([]string{"run", file}))
}
