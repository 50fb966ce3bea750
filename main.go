package main

import "github.com/moyu-x/file-transfer/cmd"

func main() {
	cmd.Execute()
}
