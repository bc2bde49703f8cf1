// Command shellout runs programs to completion and reports their output.
package main

import (
	"os"

	"github.com/deixis/shellout/cmd/shellout/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
