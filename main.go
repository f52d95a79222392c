package main

import "github.com/lepinkainen/dbtools/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
