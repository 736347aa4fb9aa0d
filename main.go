// The main package for the bindery executable.
package main

import (
	"github.com/nfields/bindery/cmd"
)

func main() {
	cmd.Execute()
}
