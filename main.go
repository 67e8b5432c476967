package main

import "github.com/notargets/lrspline/cmd"

func main() {
	cmd.Execute()
}
