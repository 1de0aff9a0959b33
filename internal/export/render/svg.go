package render

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultPageSize is the fpdf page size name used for documents.
const DefaultPageSize = "A4"

// fontFamily is embedded as a UTF-8 subset so Greek and Cyrillic holder
// names print as written.
const fontFamily = "Go"

// pageSlack is how far in millimetres a drawing may overrun a page before
// it spills onto another. Point-sized A4 designs (595x842) scale to about
// 0.2mm taller than fpdf's A4.
const pageSlack = 1.0

// SVGBackend draws a practical subset of SVG onto PDF pages. The drawing is
// scaled to the page width and split over as many pages as its height needs.
type SVGBackend struct {
	pageSize string
	compress bool
}

// SVGOption configures an SVGBackend.
type SVGOption func(*SVGBackend)

// WithPageSize selects an fpdf page size such as "A4" or "Letter".
func WithPageSize(size string) SVGOption {
	return func(b *SVGBackend) {
		if size != "" {
			b.pageSize = size
		}
	}
}

// WithCompression toggles PDF stream compression.
func WithCompression(on bool) SVGOption {
	return func(b *SVGBackend) {
		b.compress = on
	}
}

// NewSVGBackend creates a backend for A4 pages with compressed streams.
func NewSVGBackend(opts ...SVGOption) *SVGBackend {
	b := &SVGBackend{pageSize: DefaultPageSize, compress: true}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Render parses markup and draws it in a fresh fpdf document.
func (b *SVGBackend) Render(ctx context.Context, markup []byte) (Output, error) {
	d, err := parseSVG(markup)
	if err != nil {
		return Output{}, err
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	return newSession(b.pageSize, b.compress, d).render(ctx)
}

// session is the single-use rendering context for one document.
type session struct {
	pdf    *fpdf.Fpdf
	d      *drawing
	k      float64
	pageW  float64
	pageH  float64
	shiftY float64
	images map[int]string
	fonts  map[string]bool
}

var fontFiles = map[string][]byte{"": goregular.TTF, "B": gobold.TTF}

func newSession(pageSize string, compress bool, d *drawing) *session {
	pdf := fpdf.New("P", "mm", pageSize, "")
	pdf.SetCompression(compress)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("certexport", true)
	w, h := pdf.GetPageSize()
	return &session{
		pdf:    pdf,
		d:      d,
		k:      w / d.width,
		pageW:  w,
		pageH:  h,
		images: map[int]string{},
		fonts:  map[string]bool{},
	}
}

func (s *session) render(ctx context.Context) (Output, error) {
	pages := int(math.Ceil((s.d.height*s.k - pageSlack) / s.pageH))
	if pages < 1 {
		pages = 1
	}
	for p := 0; p < pages; p++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		s.pdf.AddPage()
		s.shiftY = float64(p) * s.pageH
		s.pdf.ClipRect(0, 0, s.pageW, s.pageH, false)
		for i := range s.d.elements {
			s.draw(i, &s.d.elements[i])
		}
		s.pdf.ClipEnd()
		if err := s.pdf.Error(); err != nil {
			return Output{}, err
		}
	}

	var buf bytes.Buffer
	if err := s.pdf.Output(&buf); err != nil {
		return Output{}, err
	}
	return Output{Data: buf.Bytes(), Pages: s.pdf.PageCount()}, nil
}

// pt maps a point in element coordinates to page millimetres.
func (s *session) pt(m matrix, x, y float64) (float64, float64) {
	x, y = m.apply(x, y)
	return (x - s.d.minX) * s.k, (y-s.d.minY)*s.k - s.shiftY
}

func (s *session) paintStyle(el *element) string {
	st := el.style
	fill, stroke := st.fill.visible(), st.stroke.visible() && st.strokeWidth > 0
	if fill {
		s.pdf.SetFillColor(st.fill.r, st.fill.g, st.fill.b)
	}
	if stroke {
		s.pdf.SetDrawColor(st.stroke.r, st.stroke.g, st.stroke.b)
		s.pdf.SetLineWidth(st.strokeWidth * el.m.scale() * s.k)
	}
	switch {
	case fill && stroke:
		return "FD"
	case fill:
		return "F"
	case stroke:
		return "D"
	}
	return ""
}

func (s *session) draw(i int, el *element) {
	switch el.kind {
	case kindText:
		s.drawText(el)
		return
	case kindImage:
		s.drawImage(i, el)
		return
	case kindLine:
		if !el.style.stroke.visible() {
			return
		}
		line := *el
		line.style.fill = paint{none: true}
		el = &line
	}

	styleStr := s.paintStyle(el)
	if styleStr == "" {
		return
	}
	scale := el.m.scale() * s.k

	switch el.kind {
	case kindRect:
		if el.m.axisAligned() {
			x0, y0 := s.pt(el.m, el.x, el.y)
			x1, y1 := s.pt(el.m, el.x+el.w, el.y+el.h)
			x, y, w, h := math.Min(x0, x1), math.Min(y0, y1), math.Abs(x1-x0), math.Abs(y1-y0)
			if el.rx > 0 {
				s.pdf.RoundedRect(x, y, w, h, math.Min(el.rx*scale, math.Min(w, h)/2), "1234", styleStr)
			} else {
				s.pdf.Rect(x, y, w, h, styleStr)
			}
			return
		}
		s.polygon(el.m, []point{
			{el.x, el.y}, {el.x + el.w, el.y}, {el.x + el.w, el.y + el.h}, {el.x, el.y + el.h},
		}, true, styleStr)
	case kindLine:
		x1, y1 := s.pt(el.m, el.x, el.y)
		x2, y2 := s.pt(el.m, el.x2, el.y2)
		s.pdf.Line(x1, y1, x2, y2)
	case kindCircle:
		x, y := s.pt(el.m, el.x, el.y)
		s.pdf.Circle(x, y, el.rx*scale, styleStr)
	case kindEllipse:
		x, y := s.pt(el.m, el.x, el.y)
		s.pdf.Ellipse(x, y, el.rx*scale, el.ry*scale, 0, styleStr)
	case kindPoly:
		s.polygon(el.m, el.points, el.closed, styleStr)
	case kindPath:
		s.path(el, styleStr)
	}
}

func (s *session) polygon(m matrix, pts []point, closed bool, styleStr string) {
	for j, p := range pts {
		x, y := s.pt(m, p.x, p.y)
		if j == 0 {
			s.pdf.MoveTo(x, y)
		} else {
			s.pdf.LineTo(x, y)
		}
	}
	if closed {
		s.pdf.ClosePath()
	}
	s.pdf.DrawPath(styleStr)
}

func (s *session) path(el *element, styleStr string) {
	var cx, cy, sx, sy float64
	for _, seg := range el.segments {
		a := seg.Arg
		switch seg.Cmd {
		case 'M':
			cx, cy = a[0], a[1]
			sx, sy = cx, cy
			s.pdf.MoveTo(s.pt(el.m, cx, cy))
		case 'L':
			cx, cy = a[0], a[1]
			s.pdf.LineTo(s.pt(el.m, cx, cy))
		case 'H':
			cx = a[0]
			s.pdf.LineTo(s.pt(el.m, cx, cy))
		case 'V':
			cy = a[0]
			s.pdf.LineTo(s.pt(el.m, cx, cy))
		case 'C':
			x0, y0 := s.pt(el.m, a[0], a[1])
			x1, y1 := s.pt(el.m, a[2], a[3])
			cx, cy = a[4], a[5]
			x, y := s.pt(el.m, cx, cy)
			s.pdf.CurveBezierCubicTo(x0, y0, x1, y1, x, y)
		case 'Q':
			qx, qy := s.pt(el.m, a[0], a[1])
			cx, cy = a[2], a[3]
			x, y := s.pt(el.m, cx, cy)
			s.pdf.CurveTo(qx, qy, x, y)
		case 'Z':
			s.pdf.ClosePath()
			cx, cy = sx, sy
		}
	}
	s.pdf.DrawPath(styleStr)
}

func (s *session) drawText(el *element) {
	st := el.style
	if !st.fill.visible() {
		return
	}
	fontStyle := ""
	if st.bold {
		fontStyle = "B"
	}
	if !s.fonts[fontStyle] {
		s.pdf.AddUTF8FontFromBytes(fontFamily, fontStyle, fontFiles[fontStyle])
		s.fonts[fontStyle] = true
	}
	s.pdf.SetFont(fontFamily, fontStyle, 0)
	s.pdf.SetFontUnitSize(st.fontSize * el.m.scale() * s.k)
	s.pdf.SetTextColor(st.fill.r, st.fill.g, st.fill.b)

	txt := el.text
	x, y := s.pt(el.m, el.x, el.y)
	switch st.anchor {
	case "middle":
		x -= s.pdf.GetStringWidth(txt) / 2
	case "end":
		x -= s.pdf.GetStringWidth(txt)
	}
	s.pdf.Text(x, y, txt)
}

func (s *session) drawImage(i int, el *element) {
	name, ok := s.images[i]
	opts := fpdf.ImageOptions{ImageType: el.imageType}
	if !ok {
		name = fmt.Sprintf("img%d", i)
		s.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(el.image))
		s.images[i] = name
	}
	x0, y0 := s.pt(el.m, el.x, el.y)
	x1, y1 := s.pt(el.m, el.x+el.w, el.y+el.h)
	s.pdf.ImageOptions(name, math.Min(x0, x1), math.Min(y0, y1), math.Abs(x1-x0), math.Abs(y1-y0), false, opts, 0, "")
}
