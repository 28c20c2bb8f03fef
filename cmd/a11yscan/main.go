// Command a11yscan runs the accessibility report server and scans pages
// against it from the command line.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
