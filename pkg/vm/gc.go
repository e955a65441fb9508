package vm

import "runtime"

// Collector is the garbage collector hook. Collect runs a full, synchronous
// collection; it is called without the class-table lock held and may
// unload loaders to give memory back.
type Collector interface {
	Collect()
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func()

func (f CollectorFunc) Collect() { f() }

// GoCollector runs the Go garbage collector.
var GoCollector Collector = CollectorFunc(runtime.GC)
