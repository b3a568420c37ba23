// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gpumaterial binds pipeline output to textures of a gogpu host.
//
// A Material implements pix2pix.Material. Each SetTexture snapshots the
// decoded pixels into a named slot; RenderTo uploads the slot to a
// gpucontext texture and draws it:
//
//	mtl := gpumaterial.New()
//	defer mtl.Close()
//
//	p, _ := pix2pix.New(cfg, cam, engine, mtl)
//
//	app.OnDraw(func(dc *gogpu.Context) {
//	    _ = p.Tick(ctx)
//	    _ = mtl.RenderTo(dc.AsTextureDrawer(), cfg.MaterialProperty)
//	})
//
// The GPU texture of a slot is created on the first draw and updated in
// place while its size is unchanged. When the size changes the previous
// texture is destroyed only after its replacement has been created.
package gpumaterial
