package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

// TestMain lets testscript drive the built bf binary under the name "bf"
// inside each script's process, per spec.md section 8's end-to-end
// scenarios.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"bf": run,
	}))
}

// run is main's body, factored out so testscript.RunMain can invoke it
// in-process without exiting the test binary on os.Exit.
func run() int {
	main()
	return 0
}

func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
	})
}
