package main

import "github.com/kozaktomas/hair-advisor/cmd"

func main() {
	cmd.Execute()
}
