package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/chunkvault/internal/models"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
	"github.com/dmitrijs2005/chunkvault/internal/provider/discord"
	"github.com/dmitrijs2005/chunkvault/internal/provider/discordhook"
	"github.com/dmitrijs2005/chunkvault/internal/provider/s3"
)

func (a *App) provider(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: provider <add|ls|rm> ...")
	}

	switch args[0] {
	case "add":
		return a.providerAdd(ctx, args[1:])
	case "ls", "list":
		return a.providerList(ctx)
	case "rm", "delete":
		return a.providerRemove(ctx, args[1:])
	default:
		return fmt.Errorf("unknown provider command %q", args[0])
	}
}

// providerAdd interactively collects the platform-specific configuration,
// validates it against the live platform and stores it under the given name.
// Credentials are read without terminal echo.
func (a *App) providerAdd(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: provider add <name> <platform>  (platforms: %s)",
			strings.Join(provider.Platforms(), ", "))
	}
	name, platform := args[0], args[1]

	raw, err := a.collectProviderConfig(platform)
	if err != nil {
		return err
	}

	// construct with live validation before anything is persisted
	if _, err := provider.New(platform, raw, false); err != nil {
		return err
	}

	cfg := &models.ProviderConfig{
		ID:       uuid.NewString(),
		Name:     name,
		Platform: platform,
		Version:  1,
		Config:   raw,
	}
	if err := a.providersRepo.Create(ctx, cfg); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Provider %s (%s) registered\n", name, platform)
	return nil
}

func (a *App) collectProviderConfig(platform string) (json.RawMessage, error) {
	values := map[string]string{}

	switch platform {
	case discord.Platform:
		token, err := GetSecret("Bot token", a.out)
		if err != nil {
			return nil, err
		}
		serverID, err := GetSimpleText(a.reader, "Server id", a.out)
		if err != nil {
			return nil, err
		}
		channelID, err := GetSimpleText(a.reader, "Channel id", a.out)
		if err != nil {
			return nil, err
		}
		values["bot_token"] = token
		values["server_id"] = serverID
		values["channel_id"] = channelID

	case discordhook.Platform:
		url, err := GetSecret("Webhook URL", a.out)
		if err != nil {
			return nil, err
		}
		values["webhook_url"] = url

	case s3.Platform:
		endpoint, err := GetSimpleText(a.reader, "Endpoint (empty for AWS)", a.out)
		if err != nil {
			return nil, err
		}
		region, err := GetSimpleText(a.reader, "Region", a.out)
		if err != nil {
			return nil, err
		}
		bucket, err := GetSimpleText(a.reader, "Bucket", a.out)
		if err != nil {
			return nil, err
		}
		accessKey, err := GetSimpleText(a.reader, "Access key id", a.out)
		if err != nil {
			return nil, err
		}
		secretKey, err := GetSecret("Secret access key", a.out)
		if err != nil {
			return nil, err
		}
		if endpoint != "" {
			values["endpoint"] = endpoint
		}
		values["region"] = region
		values["bucket"] = bucket
		values["access_key_id"] = accessKey
		values["secret_access_key"] = secretKey

	default:
		return nil, fmt.Errorf("unknown platform %q (available: %s)",
			platform, strings.Join(provider.Platforms(), ", "))
	}

	return json.Marshal(values)
}

func (a *App) providerList(ctx context.Context) error {
	configs, err := a.providersRepo.List(ctx)
	if err != nil {
		return err
	}

	if len(configs) == 0 {
		fmt.Fprintln(a.out, "No providers registered")
		return nil
	}

	for _, c := range configs {
		fmt.Fprintf(a.out, "%s  %-16s  %s\n", c.ID, c.Name, c.Platform)
	}
	return nil
}

func (a *App) providerRemove(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: provider rm <name>")
	}

	cfg, err := a.providersRepo.GetByName(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.providersRepo.Delete(ctx, cfg.ID); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Provider %s removed\n", cfg.Name)
	return nil
}
