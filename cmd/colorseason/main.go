// Command colorseason extracts dominant hair, skin and lip colors from portrait photos.
package main

import "os"

func main() {
	os.Exit(execute())
}
