// README: ridectl entry point; runs the cobra command tree.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
