// echoshell is the EchoV2 desktop shell host. It supervises the local
// backend service and keeps provider credentials in the OS secret store.
package main

import "github.com/echov2/echoshell/cli"

func main() {
	cli.Execute()
}
