// Command vulnprio is the command line client of the vulnprio service.
package main

import "github.com/ortelius/vulnprio/cmd"

func main() {
	cmd.Execute()
}
