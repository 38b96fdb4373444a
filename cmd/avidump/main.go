// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"log"

	"avidump"
)

func main() {
	if err := avidump.Run(); err != nil {
		log.Fatal(err)
	}
}
