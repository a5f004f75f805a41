// Command stratumctl inspects the blobs and announcements of a stratum
// dataset.
//
//	stratumctl inspect /var/lib/movies/snapshot-42
//	stratumctl --config stratum.yaml versions
//	stratumctl --config stratum.yaml plan --from 40 --to latest
//	stratumctl --config stratum.yaml pin 40
//	stratumctl --config stratum.yaml clean --keep 3
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "stratumctl:", err)
		os.Exit(1)
	}
}
