// Command uep is the envelope toolbox: validate, inspect, sign, and
// verify envelope documents, and manage tenant signing keys.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/radiant-labs/uep/pkg/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches to a subcommand. Split out for tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}
	switch args[1] {
	case "validate":
		return runValidate(args[2:], stdout, stderr)
	case "inspect":
		return runInspect(args[2:], stdout, stderr)
	case "sign":
		return runSign(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "keys":
		return runKeys(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "uep: unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: uep <command> [flags]

commands:
  validate   check an envelope document against the wire schema and
             semantic rules
  inspect    print a summary of an envelope document
  sign       attach a signature to an envelope
  verify     verify an envelope's signature
  keys       provision or rotate tenant key material`)
}

// keystoreDefault resolves the keystore path from configuration
// ($UEP_CONFIG file and environment overrides) so the -keystore flag
// only needs to be set when deviating from it.
func keystoreDefault() string {
	cfg, err := config.Load("")
	if err != nil {
		return config.Default().Security.KeystorePath
	}
	return cfg.Security.KeystorePath
}

// readInput reads an envelope document from a path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
