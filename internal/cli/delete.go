package cli

import (
	"context"
	"fmt"
)

func (a *App) remove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: rm <id>")
	}
	id := args[0]

	if err := a.svc.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}
