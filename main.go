package main

import "fleet-tracking-system/cmd"

func main() {
	cmd.Execute()
}
