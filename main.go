package main

import "github.com/naka-gawa/github-profile-stats/cmd"

func main() {
	cmd.Execute()
}
