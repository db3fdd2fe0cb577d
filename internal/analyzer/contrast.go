package analyzer

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

// ContrastDetector finds busy regions with a Sobel edge pass on a
// downscaled grayscale copy, then grows and groups the edges.
type ContrastDetector struct {
	Sample        int     // longest side of the analysed copy
	EdgeThreshold float64 // gradient magnitude counted as an edge
	MinShare      float64 // smallest block kept, as a share of the copy
	Dilate        int     // dilation passes joining nearby edges
}

func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		Sample:        128,
		EdgeThreshold: 30,
		MinShare:      0.005,
		Dilate:        2,
	}
}

// Detect returns blocks in img coordinates, largest first.
func (d *ContrastDetector) Detect(img image.Image) []Block {
	b := img.Bounds()
	if b.Empty() {
		return nil
	}
	gray, f := d.sample(img)
	edges := sobel(gray, d.EdgeThreshold)
	for i := 0; i < d.Dilate; i++ {
		edges = dilate(edges, 2)
	}

	gb := gray.Bounds()
	minArea := int(d.MinShare * float64(gb.Dx()*gb.Dy()))
	var blocks []Block
	for _, blk := range components(edges) {
		if blk.Area < minArea || blk.Area == 0 {
			continue
		}
		r := blk.Rect
		blk.Rect = image.Rect(
			b.Min.X+int(float64(r.Min.X)/f), b.Min.Y+int(float64(r.Min.Y)/f),
			b.Min.X+int(math.Ceil(float64(r.Max.X)/f)), b.Min.Y+int(math.Ceil(float64(r.Max.Y)/f)),
		).Intersect(b)
		blocks = append(blocks, blk)
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Area > blocks[j].Area })
	return blocks
}

// Focus is the centre of the largest block, or the image centre when the
// picture has no distinct region.
func (d *ContrastDetector) Focus(img image.Image) image.Point {
	blocks := d.Detect(img)
	if len(blocks) == 0 {
		return Center{}.Focus(img)
	}
	r := blocks[0].Rect
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

// sample returns a grayscale copy no longer than d.Sample on either side
// and the factor applied.
func (d *ContrastDetector) sample(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	f := 1.0
	if longest := max(b.Dx(), b.Dy()); d.Sample > 0 && longest > d.Sample {
		f = float64(d.Sample) / float64(longest)
	}
	w := max(1, int(math.Round(float64(b.Dx())*f)))
	h := max(1, int(math.Round(float64(b.Dy())*f)))
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	return gray, f
}

func sobel(g *image.Gray, threshold float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	at := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if math.Hypot(gx, gy) > threshold {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// dilate grows set pixels by radius in every direction.
func dilate(g *image.Gray, radius int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.Pix[y*g.Stride+x] == 0 {
				continue
			}
			for yy := max(0, y-radius); yy <= min(h-1, y+radius); yy++ {
				row := out.Pix[yy*out.Stride:]
				for xx := max(0, x-radius); xx <= min(w-1, x+radius); xx++ {
					row[xx] = 255
				}
			}
		}
	}
	return out
}

// components flood-fills 4-connected set regions.
func components(g *image.Gray) []Block {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	seen := make([]bool, w*h)
	var blocks []Block
	var stack []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y*w+x] || g.Pix[y*g.Stride+x] == 0 {
				continue
			}
			blk := Block{Rect: image.Rect(x, y, x+1, y+1)}
			seen[y*w+x] = true
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				blk.Area++
				blk.Rect = blk.Rect.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for _, n := range [4]image.Point{
					{X: p.X + 1, Y: p.Y}, {X: p.X - 1, Y: p.Y},
					{X: p.X, Y: p.Y + 1}, {X: p.X, Y: p.Y - 1},
				} {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h {
						continue
					}
					i := n.Y*w + n.X
					if seen[i] || g.Pix[n.Y*g.Stride+n.X] == 0 {
						continue
					}
					seen[i] = true
					stack = append(stack, n)
				}
			}
			blocks = append(blocks, blk)
		}
	}
	return blocks
}
