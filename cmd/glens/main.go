package main

import "github.com/MeKo-Tech/glens/cmd/glens/cmd"

func main() {
	cmd.Execute()
}
