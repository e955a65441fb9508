package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daimatz/ramclass/pkg/rt"
	"github.com/daimatz/ramclass/pkg/vm"
)

var (
	layoutClasspath []string
	layoutJmod      string
)

func init() {
	cmd := newLayoutCmd()
	cmd.Flags().StringSliceVar(&layoutClasspath, "classpath", nil, "Class directories and jars, comma separated")
	cmd.Flags().StringVar(&layoutJmod, "jmod", "", "Path to java.base.jmod (default: from config, JAVA_BASE_JMOD or JAVA_HOME)")
	rootCmd.AddCommand(cmd)
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout <class>...",
		Short: "Load classes and print their vtables, itables and fragments",
		Long: `The layout command loads each named class through an application loader
backed by the classpath, with java.base as the boot loader, and prints the
resulting runtime class.

Example:
  ramclass layout --classpath build/classes com/example/Main
  ramclass layout java/util/ArrayList --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd.OutOrStdout(), args)
		},
	}
}

// classpathSource searches jars and class directories in order.
func classpathSource(entries []string) vm.Source {
	var srcs vm.Sources
	for _, e := range entries {
		if strings.EqualFold(filepath.Ext(e), ".jar") {
			srcs = append(srcs, vm.NewJarSource(e))
			continue
		}
		srcs = append(srcs, vm.DirSource{Dir: e})
	}
	return srcs
}

func runLayout(w io.Writer, names []string) error {
	jmod := layoutJmod
	if jmod == "" {
		jmod = cfg.Classpath.Jmod
	}
	if jmod == "" {
		jmod = findJmodPath()
	}
	if jmod == "" {
		return errors.New("could not find java.base.jmod; set --jmod, JAVA_HOME or JAVA_BASE_JMOD")
	}
	cp := layoutClasspath
	if len(cp) == 0 {
		cp = cfg.Classpath.Dirs
	}

	machine, err := vm.New(vm.Options{Config: cfg, Boot: vm.NewJmodSource(jmod)})
	if err != nil {
		return err
	}
	app := machine.NewLoader("app", nil, classpathSource(cp))
	th := machine.NewThread()

	var out []classLayout
	for _, name := range names {
		c, err := machine.LoadClass(th, app, name)
		if err != nil {
			return fmt.Errorf("loading %s: %w", name, err)
		}
		out = append(out, describe(c))
	}
	if jsonOut {
		return printJSON(w, out)
	}
	for _, l := range out {
		printLayout(w, l)
	}
	return nil
}

type classLayout struct {
	Name          string         `json:"name"`
	Loader        string         `json:"loader"`
	Superclass    string         `json:"superclass,omitempty"`
	Depth         int            `json:"depth"`
	Header        string         `json:"header"`
	InstanceSlots int            `json:"instance_slots"`
	VTable        []slotInfo     `json:"vtable"`
	ITables       []itableInfo   `json:"itables"`
	Fragments     []fragmentInfo `json:"fragments"`
}

type slotInfo struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Method string `json:"method"`
}

type itableInfo struct {
	Interface string `json:"interface"`
	Depth     int    `json:"depth"`
	Slots     []int  `json:"slots,omitempty"`
}

type fragmentInfo struct {
	Kind    string `json:"kind"`
	Address string `json:"address"`
	Prefix  uint64 `json:"prefix,omitempty"`
	Size    uint64 `json:"size"`
}

func describe(c *rt.Class) classLayout {
	l := classLayout{
		Name:          c.Name,
		Loader:        c.Loader.Name(),
		Depth:         c.Depth,
		Header:        fmt.Sprintf("%#x", uintptr(c.Header())),
		InstanceSlots: c.InstanceSlots,
	}
	if c.Superclass != nil {
		l.Superclass = c.Superclass.Name
	}
	for i, s := range c.VTable {
		l.VTable = append(l.VTable, slotInfo{Index: i, Kind: s.Kind.String(), Method: s.String()})
	}
	for _, it := range c.ITables {
		l.ITables = append(l.ITables, itableInfo{Interface: it.Interface.Name, Depth: it.Depth, Slots: it.Slots})
	}
	for _, f := range c.Layout.Fragments {
		l.Fragments = append(l.Fragments, fragmentInfo{
			Kind:    f.Kind.String(),
			Address: fmt.Sprintf("%#x", uintptr(f.Address)),
			Prefix:  f.Prefix,
			Size:    f.Size,
		})
	}
	return l
}

func printLayout(w io.Writer, l classLayout) {
	fmt.Fprintf(w, "%s (loader %s, depth %d, header %s)\n", l.Name, l.Loader, l.Depth, l.Header)
	if l.Superclass != "" {
		fmt.Fprintf(w, "  extends %s\n", l.Superclass)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  vtable (%d slots)\n", len(l.VTable))
	for _, s := range l.VTable {
		fmt.Fprintf(tw, "    %d\t%s\t%s\n", s.Index, s.Kind, s.Method)
	}
	fmt.Fprintf(tw, "  itables (%d)\n", len(l.ITables))
	for _, it := range l.ITables {
		fmt.Fprintf(tw, "    %s\tdepth %d\t%v\n", it.Interface, it.Depth, it.Slots)
	}
	fmt.Fprintf(tw, "  fragments (%d)\n", len(l.Fragments))
	for _, f := range l.Fragments {
		fmt.Fprintf(tw, "    %s\t%s\t%d bytes\tprefix %d\n", f.Kind, f.Address, f.Size, f.Prefix)
	}
	tw.Flush()
}
