package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/chunkvault/internal/pipeline"
)

func (a *App) upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: upload <path> [description]")
	}
	path := args[0]
	description := strings.Join(args[1:], " ")

	providerName := a.config.DefaultProvider
	if providerName == "" {
		return fmt.Errorf("no provider selected: pass -p or set a default")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := a.svc.Upload(ctx, f, pipeline.UploadOptions{
		Filename:    filepath.Base(path),
		Description: description,
		Provider:    providerName,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Stored %s as %s (%d bytes)\n", file.Filename, file.ID, file.Size)
	return nil
}
