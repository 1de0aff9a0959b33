package render

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
)

// maxElements caps drawable elements per document.
const maxElements = 20000

// Subtrees that are never drawn. Script and foreign content in
// particular are dropped without being interpreted.
var skipped = map[string]bool{
	"script":         true,
	"style":          true,
	"foreignObject":  true,
	"defs":           true,
	"title":          true,
	"desc":           true,
	"metadata":       true,
	"clipPath":       true,
	"mask":           true,
	"symbol":         true,
	"marker":         true,
	"pattern":        true,
	"linearGradient": true,
	"radialGradient": true,
}

type elementKind int

const (
	kindRect elementKind = iota
	kindLine
	kindCircle
	kindEllipse
	kindPoly
	kindPath
	kindText
	kindImage
)

type point struct{ x, y float64 }

type element struct {
	kind  elementKind
	m     matrix
	style style

	x, y, w, h float64
	rx, ry     float64
	x2, y2     float64
	points     []point
	closed     bool
	segments   []fpdf.SVGBasicSegmentType
	text       string
	image      []byte
	imageType  string
}

// drawing is a parsed SVG document in root user units.
type drawing struct {
	minX, minY    float64
	width, height float64
	elements      []element
}

type frame struct {
	m     matrix
	style style
	skip  bool
}

func parseSVG(markup []byte) (*drawing, error) {
	dec := xml.NewDecoder(bytes.NewReader(markup))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var (
		d     *drawing
		stack []frame
		text  *element
		depth int
	)

	flushText := func() {
		if text == nil {
			return
		}
		text.text = strings.Join(strings.Fields(text.text), " ")
		if text.text != "" {
			d.elements = append(d.elements, *text)
		}
		text = nil
	}

parse:
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse svg: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			attrs := attrMap(t.Attr)

			if d == nil {
				if name != "svg" {
					return nil, fmt.Errorf("root element is %q, want svg", name)
				}
				d, err = newDrawing(attrs)
				if err != nil {
					return nil, err
				}
				stack = append(stack, frame{m: identity(), style: defaultStyle().apply(attrs)})
				depth++
				continue
			}

			parent := stack[len(stack)-1]
			f := frame{m: parent.m, style: parent.style, skip: parent.skip}
			if skipped[name] || attrs["display"] == "none" || styleProp(attrs["style"], "display") == "none" {
				f.skip = true
			}
			if !f.skip {
				m, err := parseTransform(attrs["transform"])
				if err != nil {
					return nil, err
				}
				f.m = parent.m.mul(m)
				if name == "svg" {
					f.m = f.m.mul(translate(length(attrs["x"]), length(attrs["y"])))
				}
				f.style = parent.style.apply(attrs)
			}
			stack = append(stack, f)
			depth++

			if f.skip {
				continue
			}
			el, ok, err := buildElement(name, attrs, f)
			if err != nil {
				return nil, err
			}
			switch {
			case name == "text":
				flushText()
				text = &el
			case name == "tspan" && text != nil:
				_, hasX := attrs["x"]
				_, hasY := attrs["y"]
				if hasX || hasY {
					prev := *text
					flushText()
					run := prev
					run.text = ""
					run.style = f.style
					if hasX {
						run.x = firstLength(attrs["x"])
					}
					if hasY {
						run.y = firstLength(attrs["y"])
					}
					text = &run
				}
			case ok:
				d.elements = append(d.elements, el)
			}
			if len(d.elements) > maxElements {
				return nil, fmt.Errorf("svg has more than %d elements", maxElements)
			}

		case xml.EndElement:
			if depth == 0 {
				continue
			}
			if t.Name.Local == "text" && !stack[len(stack)-1].skip {
				flushText()
			}
			stack = stack[:len(stack)-1]
			depth--
			if depth == 0 {
				break parse
			}

		case xml.CharData:
			if text != nil && len(stack) > 0 && !stack[len(stack)-1].skip {
				text.text += string(t)
			}
		}
	}

	if d == nil {
		return nil, errors.New("markup contains no svg element")
	}
	flushText()
	return d, nil
}

func newDrawing(attrs map[string]string) (*drawing, error) {
	d := &drawing{}
	if vb := strings.Fields(strings.ReplaceAll(attrs["viewBox"], ",", " ")); len(vb) == 4 {
		var vals [4]float64
		for i, s := range vb {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("bad viewBox %q", attrs["viewBox"])
			}
			vals[i] = v
		}
		d.minX, d.minY, d.width, d.height = vals[0], vals[1], vals[2], vals[3]
	} else {
		d.width, d.height = length(attrs["width"]), length(attrs["height"])
	}
	if d.width <= 0 || d.height <= 0 {
		return nil, errors.New("svg has no usable width and height")
	}
	return d, nil
}

func buildElement(name string, attrs map[string]string, f frame) (element, bool, error) {
	el := element{m: f.m, style: f.style}
	switch name {
	case "rect":
		el.kind = kindRect
		el.x, el.y = length(attrs["x"]), length(attrs["y"])
		el.w, el.h = length(attrs["width"]), length(attrs["height"])
		el.rx = length(attrs["rx"])
		if el.rx == 0 {
			el.rx = length(attrs["ry"])
		}
		return el, el.w > 0 && el.h > 0, nil
	case "line":
		el.kind = kindLine
		el.x, el.y = length(attrs["x1"]), length(attrs["y1"])
		el.x2, el.y2 = length(attrs["x2"]), length(attrs["y2"])
		return el, true, nil
	case "circle":
		el.kind = kindCircle
		el.x, el.y = length(attrs["cx"]), length(attrs["cy"])
		el.rx = length(attrs["r"])
		return el, el.rx > 0, nil
	case "ellipse":
		el.kind = kindEllipse
		el.x, el.y = length(attrs["cx"]), length(attrs["cy"])
		el.rx, el.ry = length(attrs["rx"]), length(attrs["ry"])
		return el, el.rx > 0 && el.ry > 0, nil
	case "polyline", "polygon":
		el.kind = kindPoly
		el.closed = name == "polygon"
		el.points = parsePoints(attrs["points"])
		return el, len(el.points) >= 2, nil
	case "path":
		segs, err := parsePath(attrs["d"])
		if err != nil {
			return el, false, err
		}
		el.kind = kindPath
		el.segments = segs
		return el, len(segs) > 0, nil
	case "text":
		el.kind = kindText
		el.x, el.y = firstLength(attrs["x"]), firstLength(attrs["y"])
		return el, false, nil
	case "image":
		data, typ, ok := decodeDataURI(attrs["href"])
		if !ok {
			return el, false, nil
		}
		el.kind = kindImage
		el.x, el.y = length(attrs["x"]), length(attrs["y"])
		el.w, el.h = length(attrs["width"]), length(attrs["height"])
		el.image, el.imageType = data, typ
		return el, el.w > 0 && el.h > 0, nil
	}
	return el, false, nil
}

// parsePath uses fpdf's SVG path parser, which yields absolute segments.
func parsePath(d string) ([]fpdf.SVGBasicSegmentType, error) {
	if strings.TrimSpace(d) == "" {
		return nil, nil
	}
	var buf bytes.Buffer
	buf.WriteString(`<svg width="1" height="1"><path d="`)
	if err := xml.EscapeText(&buf, []byte(d)); err != nil {
		return nil, err
	}
	buf.WriteString(`"/></svg>`)
	sig, err := fpdf.SVGBasicParse(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}
	var segs []fpdf.SVGBasicSegmentType
	for _, s := range sig.Segments {
		segs = append(segs, s...)
	}
	return segs, nil
}

// decodeDataURI accepts inline PNG and JPEG images. Anything else, including
// external references, is ignored.
func decodeDataURI(href string) ([]byte, string, bool) {
	var typ, rest string
	switch {
	case strings.HasPrefix(href, "data:image/png;base64,"):
		typ, rest = "PNG", strings.TrimPrefix(href, "data:image/png;base64,")
	case strings.HasPrefix(href, "data:image/jpeg;base64,"):
		typ, rest = "JPG", strings.TrimPrefix(href, "data:image/jpeg;base64,")
	case strings.HasPrefix(href, "data:image/jpg;base64,"):
		typ, rest = "JPG", strings.TrimPrefix(href, "data:image/jpg;base64,")
	default:
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(rest), ""))
	if err != nil || len(data) == 0 {
		return nil, "", false
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, "", false
	}
	return data, typ, true
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = strings.TrimSpace(a.Value)
	}
	return m
}

var numberPattern = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)

func parsePoints(s string) []point {
	nums := numberPattern.FindAllString(s, -1)
	pts := make([]point, 0, len(nums)/2)
	for i := 0; i+1 < len(nums); i += 2 {
		x, _ := strconv.ParseFloat(nums[i], 64)
		y, _ := strconv.ParseFloat(nums[i+1], 64)
		pts = append(pts, point{x, y})
	}
	return pts
}

// length parses an SVG length in user units. Percentages and unknown
// units read as 0.
func length(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "%") {
		return 0
	}
	unit := 1.0
	for suffix, k := range map[string]float64{"px": 1, "pt": 4.0 / 3, "mm": 96 / 25.4, "cm": 96 / 2.54, "in": 96} {
		if strings.HasSuffix(s, suffix) {
			s, unit = strings.TrimSuffix(s, suffix), k
			break
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v * unit
}

func firstLength(s string) float64 {
	if f := strings.Fields(strings.ReplaceAll(s, ",", " ")); len(f) > 0 {
		return length(f[0])
	}
	return 0
}
