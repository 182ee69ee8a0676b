// Package jarpatch applies patch sets to class files and jars.
package jarpatch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io/ioutil"
	"path"
	"strings"

	"github.com/pgaskin/classpatch/classfile"
	"github.com/pgaskin/classpatch/patchfile"
	"github.com/pgaskin/classpatch/patchlib"
)

// Kind is the kind of an input file.
type Kind int

const (
	Unknown Kind = iota
	Class
	Jar
)

// Log is used to log debugging messages.
var Log = func(format string, a ...interface{}) {}

// KindOf guesses the kind of a file from its name (ignoring a .xz suffix),
// then its content.
func KindOf(fn string, buf []byte) Kind {
	switch path.Ext(strings.TrimSuffix(strings.ToLower(fn), ".xz")) {
	case ".class":
		return Class
	case ".jar", ".zip", ".war":
		return Jar
	}
	switch {
	case bytes.HasPrefix(buf, []byte{0xCA, 0xFE, 0xBA, 0xBE}):
		return Class
	case bytes.HasPrefix(buf, []byte("PK\x03\x04")):
		return Jar
	}
	return Unknown
}

// PatchClass applies patch sets, in order, to a single class.
func PatchClass(buf []byte, hooks patchlib.HookLoader, pss ...patchfile.PatchSet) ([]byte, bool, error) {
	cf, err := classfile.Parse(buf)
	if err != nil {
		return nil, false, fmt.Errorf("could not parse class: %w", err)
	}
	name, err := cf.ClassName()
	if err != nil {
		return nil, false, fmt.Errorf("could not parse class: %w", err)
	}
	return patch(name, buf, hooks, pss)
}

func patch(name string, buf []byte, hooks patchlib.HookLoader, pss []patchfile.PatchSet) ([]byte, bool, error) {
	pt := patchlib.NewPatcher(name, buf, hooks)
	for _, ps := range pss {
		if err := ps.ApplyTo(pt); err != nil {
			return nil, false, err
		}
	}
	return pt.GetBytes(), pt.Changed(), nil
}

// PatchJar applies patch sets, in order, to every affected class of a jar,
// returning the new jar and the number of classes changed. Other entries are
// copied as-is.
func PatchJar(buf []byte, hooks patchlib.HookLoader, pss ...patchfile.PatchSet) ([]byte, int, error) {
	var scripts []patchlib.PatchScript
	for _, ps := range pss {
		s, err := ps.Scripts()
		if err != nil {
			return nil, 0, err
		}
		scripts = append(scripts, s...)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, 0, fmt.Errorf("could not open jar: %w", err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	if err := zw.SetComment(zr.Comment); err != nil {
		return nil, 0, fmt.Errorf("could not write jar: %w", err)
	}

	var changed int
	for _, f := range zr.File {
		Log("  entry: %s - size:%d\n", f.Name, f.UncompressedSize64)
		if strings.HasPrefix(f.Name, "META-INF/") && strings.HasSuffix(f.Name, ".SF") {
			fmt.Printf("  Warning: jar is signed (%s), patched classes will not verify\n", f.Name)
		}

		name := strings.TrimSuffix(f.Name, ".class")
		if name == f.Name || !affected(scripts, name) {
			if err := zw.Copy(f); err != nil {
				return nil, 0, fmt.Errorf("could not copy %s: %w", f.Name, err)
			}
			continue
		}

		Log("    patching %s\n", f.Name)
		rc, err := f.Open()
		if err != nil {
			return nil, 0, fmt.Errorf("could not read %s: %w", f.Name, err)
		}
		cbuf, err := ioutil.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("could not read %s: %w", f.Name, err)
		}

		cbuf, ok, err := patch(name, cbuf, hooks, pss)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", f.Name, err)
		}
		if ok {
			changed++
		}

		// keep the name, method, times and attributes
		fh := f.FileHeader
		w, err := zw.CreateHeader(&fh)
		if err != nil {
			return nil, 0, fmt.Errorf("could not write %s: %w", f.Name, err)
		}
		if _, err := w.Write(cbuf); err != nil {
			return nil, 0, fmt.Errorf("could not write %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("could not write jar: %w", err)
	}
	return out.Bytes(), changed, nil
}

func affected(scripts []patchlib.PatchScript, className string) bool {
	for _, s := range scripts {
		if s.WouldPatch(className) {
			return true
		}
	}
	return false
}
