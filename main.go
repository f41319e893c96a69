package main

import "github.com/notargets/vtu2gmsh/cmd"

func main() {
	cmd.Execute()
}
