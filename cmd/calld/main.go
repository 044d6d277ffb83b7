package main

import "github.com/openline-voip/calld/cmd/calld/cmd"

func main() {
	cmd.Execute()
}
