// Command harness runs resilient UI and API checks.
package main

import "github.com/devicelab-dev/harness/pkg/cli"

func main() {
	cli.Execute()
}
