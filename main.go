package main

import (
	"os"

	"github.com/kilnci/kiln/kiln"
)

func main() {
	kiln.New(os.Stdout, os.Stderr).Run()
}
