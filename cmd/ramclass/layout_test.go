package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/ramclass/internal/romtest"
	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/config"
	"github.com/daimatz/ramclass/pkg/vm"
)

func loadImpl(t *testing.T) classLayout {
	t.Helper()
	c := config.Default()
	c.Allocator.UseMmap = false
	machine, err := vm.New(vm.Options{
		Config: c,
		Boot:   vm.NewMapSource(romtest.Object()),
		Memory: alloc.HeapSource{},
	})
	require.NoError(t, err)
	app := machine.NewLoader("app", nil, vm.NewMapSource(
		romtest.Interface("app/Runner").Abstract("run", "()V").Build(),
		romtest.Class("app/Impl").Implements("app/Runner").Public("run", "()V").Build(),
	))
	impl, err := machine.LoadClass(machine.NewThread(), app, "app/Impl")
	require.NoError(t, err)
	return describe(impl)
}

func TestDescribe(t *testing.T) {
	l := loadImpl(t)
	assert.Equal(t, "app/Impl", l.Name)
	assert.Equal(t, "app", l.Loader)
	assert.Equal(t, "java/lang/Object", l.Superclass)
	assert.Equal(t, 1, l.Depth)
	assert.NotEqual(t, "0x0", l.Header)

	require.NotEmpty(t, l.VTable)
	last := l.VTable[len(l.VTable)-1]
	assert.Equal(t, "concrete", last.Kind)
	assert.Contains(t, last.Method, "run")

	require.Len(t, l.ITables, 1)
	assert.Equal(t, "app/Runner", l.ITables[0].Interface)
	assert.Equal(t, []int{last.Index}, l.ITables[0].Slots)

	kinds := map[string]bool{}
	for _, f := range l.Fragments {
		kinds[f.Kind] = true
	}
	assert.True(t, kinds["header"])
	assert.True(t, kinds["itable"])
}

func TestPrintLayout(t *testing.T) {
	l := loadImpl(t)
	var buf bytes.Buffer
	printLayout(&buf, l)
	out := buf.String()
	assert.Contains(t, out, "app/Impl (loader app, depth 1")
	assert.Contains(t, out, "extends java/lang/Object")
	assert.Contains(t, out, "app/Runner")
	assert.Contains(t, out, "fragments (")

	buf.Reset()
	require.NoError(t, printJSON(&buf, []classLayout{l}))
	var decoded []classLayout
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, l, decoded[0])
}

func TestClasspathSource(t *testing.T) {
	src := classpathSource([]string{"build/classes", "lib/dep.JAR"})
	srcs, ok := src.(vm.Sources)
	require.True(t, ok)
	require.Len(t, srcs, 2)
	assert.Equal(t, vm.DirSource{Dir: "build/classes"}, srcs[0])
	assert.NotEqual(t, vm.DirSource{Dir: "lib/dep.JAR"}, srcs[1])
}

func TestSetupReadsConfig(t *testing.T) {
	t.Cleanup(func() {
		configPath, logLevel, cfg = "", "", config.Default()
	})
	path := filepath.Join(t.TempDir(), "ramclass.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"off\"\n\n[classpath]\ndirs = [\"out\"]\n"), 0o644))
	configPath = path

	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "")
	require.NoError(t, setup(cmd))
	assert.Equal(t, []string{"out"}, cfg.Classpath.Dirs)

	require.NoError(t, cmd.Flags().Set("log-level", "bogus"))
	assert.Error(t, setup(cmd))
}
