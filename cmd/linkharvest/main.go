// Command linkharvest runs the link-harvesting engine against a set of
// configured sites and writes its discovery artifacts to an output directory.
package main

import (
	cmd "github.com/rohmanhakim/linkharvest/internal/cli"
)

func main() {
	cmd.Execute()
}
