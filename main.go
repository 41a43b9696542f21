package main

import "github.com/ValentinKolb/roc/cmd"

func main() {
	cmd.Execute()
}
