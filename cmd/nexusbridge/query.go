package main

import (
	"context"
	"fmt"

	"nexusbridge/internal/core"
)

// runQuery prints the machine-readable analysis block consumed by GUIs
func runQuery(ctx context.Context, svc *core.Service) error {
	q, err := svc.Query(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("COLLECTION_NAME:%s\n", q.CollectionName)
	fmt.Printf("GAME:%s\n", q.GameDomain)
	fmt.Printf("TOTAL_MODS:%d\n", q.TotalMods)
	fmt.Printf("TO_DOWNLOAD:%d\n", q.ToDownload)
	fmt.Printf("ALREADY_HAVE:%d\n", q.AlreadyHave)
	fmt.Printf("SKIPPED:%d\n", q.Skipped)
	fmt.Printf("DOWNLOAD_BYTES:%d\n", q.DownloadBytes)
	fmt.Printf("INSTALL_BYTES:%d\n", q.InstallBytes)
	for _, item := range q.Queue {
		mod := svc.Collection.Mods[item.ModIndex]
		fmt.Printf("QUEUE_ITEM:%d:%d:%d:%s\n", mod.ModID, mod.FileID, item.Size, mod.Name)
	}
	if q.Premium {
		fmt.Println("Premium: Yes")
	} else {
		fmt.Println("Premium: No")
	}
	return nil
}
