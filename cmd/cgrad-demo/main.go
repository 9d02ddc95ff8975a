package main

import "github.com/ndoll1998/cgrad/cmd/cgrad-demo/cmd"

func main() {
	cmd.Execute()
}
