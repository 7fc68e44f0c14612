package main

import "imucap/internal/cmd"

func main() {
	cmd.Execute()
}
