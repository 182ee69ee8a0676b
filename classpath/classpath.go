// Package classpath finds the bytes of classes in directories and jar files,
// for loading hooks.
package classpath

import (
	"archive/zip"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pgaskin/classpatch/classfile"
)

// ErrNotFound is returned when no entry of the path has a class.
var ErrNotFound = errors.New("class not found")

// Path is a list of directories and jars searched in order. It is safe for
// concurrent use.
type Path struct {
	entries []string

	mu    sync.Mutex
	cache map[string][]byte
	jars  map[string]*zip.ReadCloser
}

// New creates a Path from directories and jar files.
func New(entries ...string) *Path {
	return &Path{
		entries: entries,
		cache:   map[string][]byte{},
		jars:    map[string]*zip.ReadCloser{},
	}
}

// Parse creates a Path from a list separated by os.PathListSeparator. Empty
// elements are ignored.
func Parse(list string) *Path {
	var entries []string
	for _, e := range filepath.SplitList(list) {
		if e != "" {
			entries = append(entries, e)
		}
	}
	return New(entries...)
}

// Entries returns the directories and jars searched.
func (p *Path) Entries() []string {
	return append([]string(nil), p.entries...)
}

// ClassBytes returns the bytes of a class given its binary or internal name.
func (p *Path) ClassBytes(className string) ([]byte, error) {
	name := classfile.InternalName(className)

	p.mu.Lock()
	defer p.mu.Unlock()

	if buf, ok := p.cache[name]; ok {
		return buf, nil
	}
	for _, e := range p.entries {
		buf, err := p.find(e, name+".class")
		if err != nil {
			return nil, fmt.Errorf("classpath: %s: %w", e, err)
		}
		if buf != nil {
			p.cache[name] = buf
			return buf, nil
		}
	}
	return nil, fmt.Errorf("classpath: %w: %s", ErrNotFound, classfile.BinaryName(name))
}

// find returns nil if the entry doesn't contain the file.
func (p *Path) find(entry, file string) ([]byte, error) {
	zr, ok := p.jars[entry]
	if !ok {
		fi, err := os.Stat(entry)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			buf, err := ioutil.ReadFile(filepath.Join(entry, filepath.FromSlash(file)))
			if os.IsNotExist(err) {
				return nil, nil
			}
			return buf, err
		}
		if zr, err = zip.OpenReader(entry); err != nil {
			return nil, err
		}
		p.jars[entry] = zr
	}
	for _, f := range zr.File {
		if f.Name != file && strings.TrimPrefix(f.Name, "/") != file {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return ioutil.ReadAll(rc)
	}
	return nil, nil
}

// Close closes the jars opened by the Path.
func (p *Path) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	for n, zr := range p.jars {
		if err := zr.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.jars, n)
	}
	return first
}
