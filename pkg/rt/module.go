package rt

// Module is a named or unnamed module defined to one loader. Unnamed
// modules read every module and export every package; named modules read
// only what AddReads grants.
type Module struct {
	Name   string
	Loader Loader

	// exports maps a package to the modules it is exported to. A nil slice
	// exports the package to everyone.
	exports map[string][]*Module
	reads   map[*Module]bool
}

// NewModule creates a module. An empty name creates the loader's unnamed module.
func NewModule(name string, loader Loader) *Module {
	return &Module{Name: name, Loader: loader, exports: map[string][]*Module{}, reads: map[*Module]bool{}}
}

func (m *Module) IsNamed() bool { return m != nil && m.Name != "" }

// Export exports pkg to the given modules, or to everyone when none are given.
func (m *Module) Export(pkg string, to ...*Module) {
	if len(to) == 0 {
		m.exports[pkg] = nil
		return
	}
	if cur, ok := m.exports[pkg]; ok && cur == nil {
		return
	}
	m.exports[pkg] = append(m.exports[pkg], to...)
}

// AddReads makes m read other.
func (m *Module) AddReads(other *Module) { m.reads[other] = true }

// Exports reports whether pkg is exported to module to.
func (m *Module) Exports(pkg string, to *Module) bool {
	if !m.IsNamed() || m == to {
		return true
	}
	targets, ok := m.exports[pkg]
	if !ok {
		return false
	}
	if targets == nil {
		return true
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// CanRead reports whether m reads other.
func (m *Module) CanRead(other *Module) bool {
	if !m.IsNamed() || m == other {
		return true
	}
	return m.reads[other]
}

func (m *Module) String() string {
	if !m.IsNamed() {
		return "unnamed module"
	}
	return "module " + m.Name
}
