package cli

import (
	"context"
	"fmt"
)

func (a *App) list(ctx context.Context) error {
	files, err := a.svc.List(ctx)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Fprintln(a.out, "No files stored")
		return nil
	}

	for _, f := range files {
		fmt.Fprintf(a.out, "%s  %-10s  %10d  %s", f.ID, f.Status, f.Size, f.Filename)
		if f.Description != "" {
			fmt.Fprintf(a.out, "  (%s)", f.Description)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}
