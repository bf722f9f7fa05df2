package main

import "github.com/encodeous/nowmesh/cmd"

func main() {
	cmd.Execute()
}
