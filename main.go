package main

import "github.com/selimozcann/redirectvalidator/cmd"

func main() {
	cmd.Execute()
}
