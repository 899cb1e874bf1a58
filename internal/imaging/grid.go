package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/ousepachn/insta-media-sync/internal/enrich"
	"github.com/ousepachn/insta-media-sync/internal/storage"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"go.uber.org/fx"
)

const (
	itemsPerGrid = 4
	gridColumns  = 2
	maxGridWidth = 768
	jpegQuality  = 95
)

var itemIndexRe = regexp.MustCompile(`image_(\d+)\.`)

type Opts struct {
	fx.In

	Storage storage.ObjectStore
	Logger  logger.Logger
}

// Compositor builds 2x2 composite grids out of album media so one analysis
// call covers four carousel items.
type Compositor struct {
	Storage storage.ObjectStore
	Logger  logger.Logger
}

var _ enrich.GridCompositor = (*Compositor)(nil)

func New(opts Opts) *Compositor {
	return &Compositor{
		Storage: opts.Storage,
		Logger:  opts.Logger.WithComponent("GridCompositor"),
	}
}

func (c *Compositor) BuildGrids(ctx context.Context, sourcePrefix string, itemCount int, destPrefix string) ([]string, error) {
	objects, err := c.Storage.List(ctx, sourcePrefix+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list album %s: %w", sourcePrefix, err)
	}

	items := imageItems(objects)
	if itemCount > 0 && len(items) > itemCount {
		items = items[:itemCount]
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("album %s has no image items", sourcePrefix)
	}

	var gridPaths []string
	for gridIdx := 0; gridIdx*itemsPerGrid < len(items); gridIdx++ {
		start := gridIdx * itemsPerGrid
		end := min(start+itemsPerGrid, len(items))

		grid, err := c.composeGrid(ctx, items[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to compose grid %d: %w", gridIdx, err)
		}

		gridPath := path.Join(destPrefix, fmt.Sprintf("grid_%d.jpg", gridIdx))
		if err := c.Storage.PutBytes(ctx, gridPath, grid, "image/jpeg"); err != nil {
			return nil, err
		}
		gridPaths = append(gridPaths, gridPath)
	}

	c.Logger.Info("Built album grids", "source", sourcePrefix, "items", len(items), "grids", len(gridPaths))
	return gridPaths, nil
}

// imageItems filters an album listing down to its image objects, ordered by
// carousel position. Video items can't go on a grid and are left out.
func imageItems(objects []string) []string {
	var items []string
	for _, obj := range objects {
		switch strings.ToLower(path.Ext(obj)) {
		case ".jpg", ".jpeg", ".png", ".webp":
			items = append(items, obj)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return itemIndex(items[i]) < itemIndex(items[j])
	})
	return items
}

func itemIndex(objectPath string) int {
	m := itemIndexRe.FindStringSubmatch(path.Base(objectPath))
	if m == nil {
		return 1 << 30
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (c *Compositor) composeGrid(ctx context.Context, itemPaths []string) ([]byte, error) {
	targetWidth := maxGridWidth / gridColumns

	scaled := make([]image.Image, 0, len(itemPaths))
	maxHeight := 0
	for _, p := range itemPaths {
		data, err := c.Storage.GetBytes(ctx, p)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", p, err)
		}
		img = scaleToWidth(img, targetWidth)
		if h := img.Bounds().Dy(); h > maxHeight {
			maxHeight = h
		}
		scaled = append(scaled, img)
	}

	rows := (len(scaled) + gridColumns - 1) / gridColumns
	canvas := image.NewRGBA(image.Rect(0, 0, gridColumns*targetWidth, rows*maxHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, img := range scaled {
		row, col := i/gridColumns, i%gridColumns
		// Center each item vertically within its cell.
		yOffset := (maxHeight - img.Bounds().Dy()) / 2
		cell := image.Rect(
			col*targetWidth,
			row*maxHeight+yOffset,
			col*targetWidth+img.Bounds().Dx(),
			row*maxHeight+yOffset+img.Bounds().Dy(),
		)
		draw.Draw(canvas, cell, img, img.Bounds().Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scaleToWidth downsizes an image to the target width preserving aspect
// ratio. Images already narrower than the target are left alone.
func scaleToWidth(img image.Image, targetWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() <= targetWidth {
		return img
	}
	targetHeight := b.Dy() * targetWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
