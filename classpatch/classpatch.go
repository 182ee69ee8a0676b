// Command classpatch patches a jar or class using the patch files listed in a
// classpatch.yaml config.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/pgaskin/classpatch/classpath"
	"github.com/pgaskin/classpatch/jarpatch"
	"github.com/pgaskin/classpatch/metrics"
	"github.com/pgaskin/classpatch/patchfile"
	_ "github.com/pgaskin/classpatch/patchfile/classpatch"
	_ "github.com/pgaskin/classpatch/patchfile/tomlpatch"
	"github.com/pgaskin/classpatch/patchlib"
	"github.com/pkg/errors"
)

var version = "unknown"

var log = func(format string, a ...interface{}) {}

func main() {
	fmt.Printf("classpatch %s\n\n", version)

	cfgfn := "./classpatch.yaml"
	if len(os.Args) > 2 {
		checkErr(errors.New("usage: classpatch [classpatch.yaml]"), "")
	} else if len(os.Args) == 2 {
		cfgfn = os.Args[1]
	}

	cfg, err := readConfig(cfgfn)
	checkErr(err, "Could not read "+cfgfn)

	logf, err := os.Create(cfg.Log)
	checkErr(err, "Could not open and truncate log file")
	defer logf.Close()

	log = func(format string, a ...interface{}) {
		fmt.Fprintf(logf, format, a...)
	}
	patchfile.Log = func(format string, a ...interface{}) {
		fmt.Fprintf(logf, "        "+format, a...)
	}
	jarpatch.Log = func(format string, a ...interface{}) {
		fmt.Fprintf(logf, "    "+format, a...)
	}
	patchlib.Log = func(format string, a ...interface{}) {
		fmt.Fprintf(logf, "            "+format+"\n", a...)
	}

	d, _ := os.Getwd()
	log("classpatch %s\n\ndir:%s\ncfg: %#v\n\n", version, d, cfg)

	pss, err := cfg.loadPatches()
	checkErr(err, "Could not load patches")

	var hooks patchlib.HookLoader
	if len(cfg.HookPath) != 0 {
		log("hook path: %s\n", cfg.hookPath())
		cp := classpath.Parse(cfg.hookPath())
		defer cp.Close()
		hooks = cp
	}

	log("reading input: %s\n", cfg.In)
	buf, err := ioutil.ReadFile(cfg.In)
	checkErr(err, "Could not read input file")

	if strings.HasSuffix(cfg.In, ".xz") {
		log("decompressing input\n")
		buf, err = patchfile.Unxz(buf)
		checkErr(err, "Could not decompress input file")
	}

	start := time.Now()
	var changed int
	switch jarpatch.KindOf(cfg.In, buf) {
	case jarpatch.Class:
		fmt.Printf("Patching %s\n", cfg.In)
		var ok bool
		buf, ok, err = jarpatch.PatchClass(buf, hooks, pss...)
		if ok {
			changed = 1
		}
	case jarpatch.Jar:
		fmt.Printf("Patching classes in %s\n", cfg.In)
		buf, changed, err = jarpatch.PatchJar(buf, hooks, pss...)
	default:
		err = errors.New("not a class or a jar")
	}
	checkErr(err, "Could not patch "+cfg.In)
	log("patched %d classes in %s\n", changed, time.Since(start))

	log("writing output: %s\n", cfg.Out)
	err = ioutil.WriteFile(cfg.Out, buf, 0644)
	checkErr(err, "Could not write patched output")

	if cfg.Metrics != "" {
		log("writing metrics: %s\n", cfg.Metrics)
		err = metrics.WriteToTextfile(cfg.Metrics)
		checkErr(err, "Could not write metrics")
	}

	log("patch success\n")
	fmt.Printf("Successfully saved patched %s to %s (%d classes changed)\n", cfg.In, cfg.Out, changed)

	if runtime.GOOS == "windows" {
		fmt.Printf("\n\nWaiting 60 seconds because runnning on Windows\n")
		time.Sleep(time.Second * 60)
	}
}

func checkErr(err error, msg string) {
	if err == nil {
		return
	}
	if msg != "" {
		log("Fatal: %s: %v\n", msg, err)
		fmt.Fprintf(os.Stderr, "Fatal: %s: %v\n", msg, err)
	} else {
		log("Fatal: %v\n", err)
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
	}
	if runtime.GOOS == "windows" {
		fmt.Printf("\n\nWaiting 60 seconds because runnning on Windows\n")
		time.Sleep(time.Second * 60)
	}
	os.Exit(1)
}
