package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"

	"nexusbridge/internal/collection"
	"nexusbridge/internal/core"
	"nexusbridge/internal/domain"
	"nexusbridge/internal/mo2"
	"nexusbridge/internal/source/nexusmods"
	"nexusbridge/internal/storage/config"
	"nexusbridge/internal/storage/db"
)

// run is the whole installer flow behind the root command
func run(ctx context.Context, input, mo2Path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	profile := flagProfile
	if profile == "" {
		profile = cfg.DefaultProfile
	}

	apiKey := config.FindAPIKey()
	client := nexusmods.NewClient(nil, apiKey)
	downloader := core.NewDownloader(nil)
	extractor := core.NewExtractor(cfg.SevenZipPath)
	instance := mo2.New(mo2Path)
	instance.Downloads = cfg.DownloadsDir
	printer := core.NewPrinter(os.Stdout)

	descriptorPath, err := resolveInput(ctx, client, downloader, extractor, input, mo2Path)
	if err != nil {
		return err
	}

	col, err := collection.ParseFile(descriptorPath)
	if err != nil {
		return err
	}

	svc := &core.Service{
		Collection: col,
		Instance:   instance,
		Client:     client,
		Downloader: downloader,
		Extractor:  extractor,
		Printer:    printer,
		Profile:    profile,
		AutoYes:    flagYes,
		Confirm:    confirmPrompt,
	}

	if flagQuery {
		return runQuery(ctx, svc)
	}
	if flagNXM != "" {
		return svc.SatisfyNXM(ctx, flagNXM)
	}

	account, err := client.Validate(ctx)
	if err != nil {
		return err
	}
	if !account.IsPremium {
		return fmt.Errorf("%w: the free API tier does not vend direct download links; use --query and --nxm for the manual flow",
			domain.ErrPremiumRequired)
	}
	pterm.Info.WithWriter(os.Stderr).Printfln("Authenticated as %s (premium)", account.Username)

	manifest, err := db.New(filepath.Join(mo2Path, "nexusbridge.db"))
	if err != nil {
		pterm.Warning.WithWriter(os.Stderr).Printfln("Manifest database unavailable: %v", err)
	} else {
		svc.Manifest = manifest
		defer manifest.Close()
	}

	result, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d mods failed to install", result.Failed)
	}
	return nil
}

// resolveInput turns the positional argument into a descriptor path: a
// collection URL is fetched through the API, anything else must be a local
// collection.json.
func resolveInput(ctx context.Context, client *nexusmods.Client, downloader *core.Downloader, extractor *core.Extractor, input, mo2Path string) (string, error) {
	if m := core.CollectionURLPattern.FindStringSubmatch(input); m != nil {
		gameDomain, slug := m[1], m[2]
		pterm.Info.WithWriter(os.Stderr).Printfln("Fetching collection %s/%s ...", gameDomain, slug)
		return client.FetchCollection(ctx, gameDomain, slug, mo2Path, downloader, extractor)
	}
	if _, err := os.Stat(input); err != nil {
		return "", fmt.Errorf("collection descriptor not found: %s", input)
	}
	return input, nil
}
