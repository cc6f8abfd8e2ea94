package main

import "schemalift/cmd"

func main() {
	cmd.Execute()
}
