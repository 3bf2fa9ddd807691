// The main package for the pagewatch executable.
package main

import "github.com/JakeFAU/pagewatch/cmd"

func main() {
	cmd.Execute()
}
