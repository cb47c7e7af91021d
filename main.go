// The main package for the media-crawler executable.
package main

import (
	"os"

	"github.com/JakeFAU/media-discovery-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
