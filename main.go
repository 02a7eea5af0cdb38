package main

import "github.com/unilib/apiserver/cmd"

func main() {
	cmd.Execute()
}
