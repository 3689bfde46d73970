// Command sentinel runs the Sentinel policy gateway.
package main

import "github.com/vasuans/sentinel-ai-gateway/cmd/sentinel/cmd"

func main() {
	cmd.Execute()
}
