package main

import "scour/cmd"

func main() {
	cmd.Execute()
}
