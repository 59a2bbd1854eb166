package main

import "geo-refresh/cmd"

func main() {
	cmd.Execute()
}
