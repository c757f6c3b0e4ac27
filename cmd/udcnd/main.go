// Command udcnd runs the forwarder as a standalone daemon. Grounded on
// the teacher's cmd/ndnd/main.go (a one-line Execute() over a cobra root
// command defined in a sibling package).
package main

import "github.com/ben-mansor/muDCN-v2/cmd/udcnd/daemon"

func main() {
	daemon.Root.Execute()
}
