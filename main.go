package main

import "github.com/SylvanaMarinePurnomo/PlateTrack/cmd"

func main() {
	cmd.Execute()
}
