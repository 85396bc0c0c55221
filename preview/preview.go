// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package preview renders qualitative side-by-side composites of
// image-restoration batches: one row per example, with the degraded input,
// the model restoration and the reference laid out left to right. Written
// once per epoch under deterministic names, they give a quick visual check
// next to the numeric loss curves.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/pkg/errors"
)

// Config of a preview writer, created with New.
type Config struct {
	maxValue   float64
	gap        int
	background color.NRGBA
	format     string
}

// New creates a preview configuration with values in [0, 255], a 2 pixel
// gap between tiles and PNG output.
func New() *Config {
	return &Config{
		maxValue:   255,
		gap:        2,
		background: color.NRGBA{R: 32, G: 32, B: 32, A: 255},
		format:     "png",
	}
}

// MaxValue sets the value mapping to full brightness, matching the color
// range the tensors use. Defaults to 255.
func (cfg *Config) MaxValue(v float64) *Config {
	cfg.maxValue = v
	return cfg
}

// Gap sets the spacing between tiles, in pixels.
func (cfg *Config) Gap(pixels int) *Config {
	cfg.gap = pixels
	return cfg
}

// Format sets the file format of Save, "png" (default), "jpg" or "jpeg".
func (cfg *Config) Format(format string) *Config {
	cfg.format = format
	return cfg
}

// Composite renders the three batches into one image, a row per example
// with the degraded, restored and reference tiles side by side. Batches
// are image tensors with a channels-last layout; the degraded batch may
// have a smaller spatial size and is rescaled to the restored tile size.
func (cfg *Config) Composite(degraded, restored, reference *tensors.Tensor) (image.Image, error) {
	var tiles [3][]image.Image
	err := exceptions.TryCatch[error](func() {
		for i, t := range []*tensors.Tensor{degraded, restored, reference} {
			tiles[i] = timage.ToImage().MaxValue(cfg.maxValue).Batch(t)
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "converting batches to images")
	}
	numRows := len(tiles[1])
	if len(tiles[0]) != numRows || len(tiles[2]) != numRows {
		return nil, errors.Errorf("batch sizes differ: %d degraded, %d restored, %d reference",
			len(tiles[0]), len(tiles[1]), len(tiles[2]))
	}
	if numRows == 0 {
		return nil, errors.New("empty batch")
	}

	tileBounds := tiles[1][0].Bounds()
	tileW, tileH := tileBounds.Dx(), tileBounds.Dy()
	canvas := imaging.New(3*tileW+2*cfg.gap, numRows*tileH+(numRows-1)*cfg.gap, cfg.background)
	for row := 0; row < numRows; row++ {
		y := row * (tileH + cfg.gap)
		for col, batch := range tiles {
			tile := batch[row]
			if tile.Bounds().Dx() != tileW || tile.Bounds().Dy() != tileH {
				tile = imaging.Resize(tile, tileW, tileH, imaging.Lanczos)
			}
			canvas = imaging.Paste(canvas, tile, image.Pt(col*(tileW+cfg.gap), y))
		}
	}
	return canvas, nil
}

// Save renders the composite of the three batches and writes it into dir
// as "preview_<epoch>.<format>", replacing any previous file of the same
// epoch. It returns the written path.
func (cfg *Config) Save(dir string, epoch int, degraded, restored, reference *tensors.Tensor) (string, error) {
	switch cfg.format {
	case "png", "jpg", "jpeg":
	default:
		return "", errors.Errorf("unsupported preview format %q", cfg.format)
	}
	composite, err := cfg.Composite(degraded, restored, reference)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return "", errors.Wrapf(err, "creating %q", dir)
	}
	filePath := filepath.Join(dir, fmt.Sprintf("preview_%04d.%s", epoch, cfg.format))
	if err := imaging.Save(composite, filePath); err != nil {
		return "", errors.Wrapf(err, "writing %q", filePath)
	}
	return filePath, nil
}
