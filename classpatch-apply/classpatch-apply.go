// Command classpatch-apply applies a single patch file to a class or a jar.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pgaskin/classpatch/classpath"
	"github.com/pgaskin/classpatch/jarpatch"
	"github.com/pgaskin/classpatch/metrics"
	"github.com/pgaskin/classpatch/patchfile"
	_ "github.com/pgaskin/classpatch/patchfile/classpatch"
	_ "github.com/pgaskin/classpatch/patchfile/tomlpatch"
	"github.com/pgaskin/classpatch/patchlib"
	"github.com/spf13/pflag"
)

var version = "unknown"

func errexit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

func main() {
	input := pflag.StringP("input", "i", "", "the .class or .jar file to patch, optionally xz compressed (required)")
	patchFile := pflag.StringP("patch-file", "p", "", "the file containing the patches (required)")
	output := pflag.StringP("output", "o", "", "the file to write the patched output to (will be overwritten if exists) (required)")
	patchFormat := pflag.StringP("patch-format", "f", "classpatch", fmt.Sprintf("the patch format (one of: %s)", strings.Join(patchfile.GetFormats(), ",")))
	hookPath := pflag.StringP("hook-path", "c", "", fmt.Sprintf("directories and jars containing the hook classes, separated by '%c'", os.PathListSeparator))
	metricsFile := pflag.StringP("metrics-file", "m", "", "write prometheus metrics to this file after patching")
	verbose := pflag.BoolP("verbose", "v", false, "show verbose output from patchlib")
	help := pflag.BoolP("help", "h", false, "show this help text")
	pflag.Parse()

	if *help || pflag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "Usage: classpatch-apply [OPTIONS]\n")
		fmt.Fprintf(os.Stderr, "\nVersion: %s\n\nOptions:\n", version)
		pflag.PrintDefaults()
		os.Exit(1)
	}

	if *input == "" || *patchFile == "" || *output == "" {
		errexit("Error: input, patch-file, and output flags are required. See --help for more info.\n")
	}

	if _, ok := patchfile.GetFormat(*patchFormat); !ok {
		errexit("Error: invalid format %s. See --help for more info.\n", *patchFormat)
	}

	if *verbose {
		patchfile.Log = func(format string, a ...interface{}) {
			fmt.Printf(format, a...)
		}
		jarpatch.Log = patchfile.Log
		patchlib.Log = func(format string, a ...interface{}) {
			fmt.Printf("    "+format+"\n", a...)
		}
	} else {
		patchfile.Log = func(format string, a ...interface{}) {}
		jarpatch.Log = func(format string, a ...interface{}) {}
		patchlib.Log = func(format string, a ...interface{}) {}
	}

	ps, err := patchfile.ReadFromFile(*patchFormat, *patchFile)
	if err != nil {
		errexit("Error: could not read patch file: %v\n", err)
	}

	err = ps.Validate()
	if err != nil {
		errexit("Error: could not validate patch file: %v\n", err)
	}

	buf, err := ioutil.ReadFile(*input)
	if err != nil {
		errexit("Error: could not read input file: %v\n", err)
	}

	if strings.HasSuffix(*input, ".xz") {
		if buf, err = patchfile.Unxz(buf); err != nil {
			errexit("Error: could not decompress input file: %v\n", err)
		}
	}

	var hooks patchlib.HookLoader
	if *hookPath != "" {
		cp := classpath.Parse(*hookPath)
		defer cp.Close()
		hooks = cp
	}

	var obuf []byte
	var changed int
	switch jarpatch.KindOf(*input, buf) {
	case jarpatch.Class:
		var ok bool
		obuf, ok, err = jarpatch.PatchClass(buf, hooks, ps)
		if ok {
			changed = 1
		}
	case jarpatch.Jar:
		obuf, changed, err = jarpatch.PatchJar(buf, hooks, ps)
	default:
		errexit("Error: input file is not a class or a jar\n")
	}
	if err != nil {
		errexit("Error: could not apply patch file: %v\n", err)
	}

	f, err := os.Create(*output)
	if err != nil {
		errexit("Error: could not create output file: %v\n", err)
	}
	defer f.Close()

	n, err := f.Write(obuf)
	if err != nil {
		errexit("Error: could not write output file: %v\n", err)
	} else if n != len(obuf) {
		errexit("Error: could not create output file: could not finish writing all bytes to file\n")
	}

	if *metricsFile != "" {
		if err := metrics.WriteToTextfile(*metricsFile); err != nil {
			errexit("Error: could not write metrics file: %v\n", err)
		}
	}

	fmt.Printf("Successfully patched '%s' using '%s' to '%s' (%d classes changed)\n", *input, *patchFile, *output, changed)
}
