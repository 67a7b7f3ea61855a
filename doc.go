/*
Package regions keeps a locally owned list of free-form region annotations
consistent with the annotation store of an external rendering engine.

The engine owns the image, the drawing tools and the store. It does not give
each record a stable identifier, it may report one completed region several
times, and it may ignore edit or delete requests without raising an error.
Regions assigns every annotation a uid once, suppresses duplicate
notifications, and rebuilds its list from the store whenever a mutation
cannot be confirmed.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/regions"
		"github.com/aretw0/regions/pkg/adapters/memory"
		"github.com/aretw0/regions/pkg/domain"
	)

	func main() {
		ctx := context.Background()
		engine := memory.NewEngine()
		engine.AddImage("scan", memory.PNG(64, 64))

		v, err := regions.New(regions.WithRenderer(engine), regions.WithImageSource(engine))
		if err != nil {
			log.Fatal(err)
		}
		defer v.Close()

		if _, err := v.LoadImage(ctx, "scan"); err != nil {
			log.Fatal(err)
		}

		// The user draws a region.
		_ = v.Add(ctx)
		_, _ = engine.Draw("main", domain.DefaultTool, nil)
		v.Flush()

		for _, l := range v.Labels() {
			fmt.Println(l.DisplayName)
		}
	}

# Architecture

The root package is a facade over internal/runtime. Collaborators are
described in pkg/ports and implemented in pkg/adapters: a headless memory
engine, a Redis-backed store and locker, an HTTP API with server-sent events,
and an MCP tool server.
*/
package regions
