package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/wiesenwischer/readystackgo/internal/imageref"
	"github.com/wiesenwischer/readystackgo/internal/registry"
)

// runCheckRegistry classifies whether an image reference's registry needs
// credentials, the one-shot probe a deploy flow would run before pulling an
// image for the first time rather than discovering an auth failure mid-plan.
func (a *app) runCheckRegistry(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check-registry", flag.ExitOnError)
	username := fs.String("username", "", "registry username, if the image is expected to require auth")
	password := fs.String("password", "", "registry password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("check-registry: expected exactly one image reference argument")
	}

	ref := imageref.Parse(fs.Arg(0))
	checker := registry.NewChecker()
	access := checker.CheckAccess(ctx, ref.Host, ref.Namespace, ref.Repository, registry.Credentials{
		Username: *username,
		Password: *password,
	})

	fmt.Printf("%s/%s/%s: %s\n", ref.Host, ref.Namespace, ref.Repository, access)
	return nil
}
