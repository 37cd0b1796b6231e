// linkctl is the administrative client for the linkgate HTTP control plane.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		var se statusError
		if !errors.As(err, &se) {
			fmt.Fprintln(os.Stderr, "linkctl:", err)
		}
		os.Exit(1)
	}
}
