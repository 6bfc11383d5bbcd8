package driver_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katara/internal/driver"
)

const sampleIR = `@0 main () => (i64) {
  {0}
  ret #0:i64
}
`

func TestClassifyArgsNoPaths(t *testing.T) {
	kind, code := driver.ClassifyArgs(nil)
	assert.Equal(t, driver.ArgsNone, kind)
	assert.Equal(t, driver.ExitNoPathsProvided, code)
}

func TestClassifyArgsMixedFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "a.ir")
	require.NoError(t, os.WriteFile(file, []byte(sampleIR), 0o644))

	_, code := driver.ClassifyArgs([]string{dir, file})
	assert.Equal(t, driver.ExitMixedFileAndPackageArgs, code)
}

func TestClassifyArgsMultipleDirectories(t *testing.T) {
	_, code := driver.ClassifyArgs([]string{t.TempDir(), t.TempDir()})
	assert.Equal(t, driver.ExitMultiplePackagePaths, code)
}

func TestLoadProgramFromSingleFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.ir")
	require.NoError(t, os.WriteFile(file, []byte(sampleIR), 0o644))

	prog, code, err := driver.LoadProgram([]string{file})
	require.NoError(t, err)
	assert.Equal(t, driver.ExitSuccess, code)
	entryNum, ok := prog.EntryFunc()
	require.True(t, ok)
	f, ok := prog.Func(entryNum)
	require.True(t, ok)
	assert.Equal(t, "main", f.Name())
}

func TestLoadProgramFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ir"), []byte(sampleIR), 0o644))

	prog, code, err := driver.LoadProgram([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, driver.ExitSuccess, code)
	_, ok := prog.EntryFunc()
	assert.True(t, ok)
}

func TestLoadProgramMissingMainFuncFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.ir")
	require.NoError(t, os.WriteFile(file, []byte(`@0 helper () => (i64) {
  {0}
  ret #0:i64
}
`), 0o644))

	_, code, err := driver.LoadProgram([]string{file})
	require.Error(t, err)
	assert.Equal(t, driver.ExitNoMainPackage, code)
}
