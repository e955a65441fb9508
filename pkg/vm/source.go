package vm

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/daimatz/ramclass/pkg/classfile"
	"github.com/daimatz/ramclass/pkg/rom"
)

// Source finds class descriptors by binary name. Find returns an error
// wrapping ErrClassNotFound when the source does not hold the class.
// Sources may be shared by concurrently loading threads.
type Source interface {
	Find(name string) (*rom.Class, error)
}

func notFound(name, where string) error {
	return fmt.Errorf("%w: %s in %s", ErrClassNotFound, name, where)
}

// MapSource serves descriptors from memory.
type MapSource map[string]*rom.Class

// NewMapSource indexes descs by name.
func NewMapSource(descs ...*rom.Class) MapSource {
	m := make(MapSource, len(descs))
	for _, d := range descs {
		m[d.Name] = d
	}
	return m
}

func (m MapSource) Find(name string) (*rom.Class, error) {
	if d, ok := m[name]; ok {
		return d, nil
	}
	return nil, notFound(name, "memory")
}

// Sources searches each source in order.
type Sources []Source

func (s Sources) Find(name string) (*rom.Class, error) {
	for _, src := range s {
		d, err := src.Find(name)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, notFound(name, "classpath")
}

// DirSource loads .class files from a directory tree.
type DirSource struct {
	Dir string
}

func (s DirSource) Find(name string) (*rom.Class, error) {
	path := filepath.Join(s.Dir, filepath.FromSlash(name)+".class")
	cf, err := classfile.ParseFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name, s.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("dir: parsing %s: %w", path, err)
	}
	return descriptor(cf, name)
}

// ArchiveSource loads classes from a jar or a JDK jmod file. The archive is
// read on first use.
type ArchiveSource struct {
	Path string
	// prefix is the directory holding classes inside the archive.
	prefix string
	// skip is the length of the header preceding the zip data.
	skip int

	once    sync.Once
	openErr error
	files   map[string]*zip.File
}

// NewJmodSource returns a source reading a jmod file, which is a zip archive
// behind a 4-byte "JM\x01\x00" header with classes under classes/.
func NewJmodSource(path string) *ArchiveSource {
	return &ArchiveSource{Path: path, prefix: "classes/", skip: 4}
}

// NewJarSource returns a source reading a jar file.
func NewJarSource(path string) *ArchiveSource {
	return &ArchiveSource{Path: path}
}

func (s *ArchiveSource) open() error {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("archive: reading %s: %w", s.Path, err)
	}
	if len(data) < s.skip {
		return fmt.Errorf("archive: %s is too short", s.Path)
	}
	data = data[s.skip:]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("archive: opening zip %s: %w", s.Path, err)
	}
	s.files = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		s.files[f.Name] = f
	}
	return nil
}

func (s *ArchiveSource) Find(name string) (*rom.Class, error) {
	s.once.Do(func() { s.openErr = s.open() })
	if s.openErr != nil {
		return nil, s.openErr
	}
	target := s.prefix + name + ".class"
	f, ok := s.files[target]
	if !ok {
		return nil, notFound(name, s.Path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive: opening %s: %w", target, err)
	}
	defer rc.Close()
	cf, err := classfile.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: parsing %s: %w", name, err)
	}
	return descriptor(cf, name)
}

func descriptor(cf *classfile.ClassFile, name string) (*rom.Class, error) {
	d, err := cf.Descriptor()
	if err != nil {
		return nil, err
	}
	if d.Name != name {
		return nil, fmt.Errorf("%w: %s (wrong name: %s)", ErrClassNotFound, name, d.Name)
	}
	return d, nil
}
