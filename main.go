package main

import "github.com/stevecastle/wallkit/cmd"

func main() {
	cmd.Execute()
}
