package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/berkus/linker-script/pkg"
)

// Version prints build metadata.
type Version struct {
	Authors bool `help:"Also print author information." short:"a"`
}

// Run executes the version command.
func (v *Version) Run(_ context.Context) error {
	fmt.Printf("%s %s\n", pkg.Name, strings.TrimSpace(pkg.Version))

	if v.Authors {
		for _, a := range pkg.Author {
			fmt.Printf("  %s <%s>\n", a.Name, a.Email)
		}
	}

	return nil
}
