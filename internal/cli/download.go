package cli

import (
	"context"
	"fmt"
	"io"
	"os"
)

func (a *App) download(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: download <id> [dest]")
	}
	id := args[0]

	st, err := a.svc.OpenStream(ctx, id)
	if err != nil {
		return err
	}
	defer st.Close()

	dest := st.File().Filename
	if len(args) > 1 {
		dest = args[1]
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, st); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("download %s: %w", id, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Saved %s (%d bytes)\n", dest, st.File().Size)
	return nil
}
