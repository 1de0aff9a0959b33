package render

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// matrix is an affine transform [a c e; b d f; 0 0 1].
type matrix struct{ a, b, c, d, e, f float64 }

func identity() matrix { return matrix{a: 1, d: 1} }

func translate(x, y float64) matrix { return matrix{a: 1, d: 1, e: x, f: y} }

// mul returns m·n: n is applied first.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		a: m.a*n.a + m.c*n.b,
		b: m.b*n.a + m.d*n.b,
		c: m.a*n.c + m.c*n.d,
		d: m.b*n.c + m.d*n.d,
		e: m.a*n.e + m.c*n.f + m.e,
		f: m.b*n.e + m.d*n.f + m.f,
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m.a*x + m.c*y + m.e, m.b*x + m.d*y + m.f
}

// scale is the uniform scale factor used for radii, widths and font sizes.
func (m matrix) scale() float64 {
	return math.Sqrt(math.Abs(m.a*m.d - m.b*m.c))
}

func (m matrix) axisAligned() bool { return m.b == 0 && m.c == 0 }

var transformPattern = regexp.MustCompile(`([a-zA-Z]+)\s*\(([^)]*)\)`)

func parseTransform(s string) (matrix, error) {
	m := identity()
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	for _, part := range transformPattern.FindAllStringSubmatch(s, -1) {
		var args []float64
		for _, n := range numberPattern.FindAllString(part[2], -1) {
			v, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return m, fmt.Errorf("bad transform %q", s)
			}
			args = append(args, v)
		}
		arg := func(i int, def float64) float64 {
			if i < len(args) {
				return args[i]
			}
			return def
		}

		var t matrix
		switch part[1] {
		case "matrix":
			if len(args) != 6 {
				return m, fmt.Errorf("bad transform %q", s)
			}
			t = matrix{args[0], args[1], args[2], args[3], args[4], args[5]}
		case "translate":
			t = translate(arg(0, 0), arg(1, 0))
		case "scale":
			sx := arg(0, 1)
			t = matrix{a: sx, d: arg(1, sx)}
		case "rotate":
			rad := arg(0, 0) * math.Pi / 180
			cos, sin := math.Cos(rad), math.Sin(rad)
			cx, cy := arg(1, 0), arg(2, 0)
			t = translate(cx, cy).mul(matrix{a: cos, b: sin, c: -sin, d: cos}).mul(translate(-cx, -cy))
		case "skewX":
			t = matrix{a: 1, c: math.Tan(arg(0, 0) * math.Pi / 180), d: 1}
		case "skewY":
			t = matrix{a: 1, b: math.Tan(arg(0, 0) * math.Pi / 180), d: 1}
		default:
			return m, fmt.Errorf("unsupported transform %q", part[1])
		}
		m = m.mul(t)
	}
	return m, nil
}

type paint struct {
	none    bool
	r, g, b int
}

func (p paint) visible() bool { return !p.none }

// style holds the presentation properties inherited down the tree.
type style struct {
	fill        paint
	stroke      paint
	strokeWidth float64
	fontSize    float64
	bold        bool
	anchor      string
}

func defaultStyle() style {
	return style{
		fill:        paint{},
		stroke:      paint{none: true},
		strokeWidth: 1,
		fontSize:    16,
		anchor:      "start",
	}
}

// apply overlays presentation attributes, then the style attribute.
func (s style) apply(attrs map[string]string) style {
	props := make(map[string]string, 8)
	for _, k := range []string{"fill", "stroke", "stroke-width", "font-size", "font-weight", "text-anchor"} {
		if v, ok := attrs[k]; ok {
			props[k] = v
		}
	}
	for _, decl := range strings.Split(attrs["style"], ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok {
			props[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	if v, ok := props["fill"]; ok {
		if p, ok := parsePaint(v); ok {
			s.fill = p
		}
	}
	if v, ok := props["stroke"]; ok {
		if p, ok := parsePaint(v); ok {
			s.stroke = p
		}
	}
	if v, ok := props["stroke-width"]; ok {
		s.strokeWidth = length(v)
	}
	if v, ok := props["font-size"]; ok {
		if n := length(v); n > 0 {
			s.fontSize = n
		}
	}
	if v, ok := props["font-weight"]; ok {
		n, err := strconv.Atoi(v)
		s.bold = v == "bold" || v == "bolder" || (err == nil && n >= 600)
	}
	if v, ok := props["text-anchor"]; ok {
		s.anchor = v
	}
	return s
}

func styleProp(decls, name string) string {
	for _, decl := range strings.Split(decls, ";") {
		if k, v, ok := strings.Cut(decl, ":"); ok && strings.TrimSpace(k) == name {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var namedColors = map[string]paint{
	"black":  {},
	"white":  {r: 255, g: 255, b: 255},
	"red":    {r: 255},
	"green":  {g: 128},
	"blue":   {b: 255},
	"gray":   {r: 128, g: 128, b: 128},
	"grey":   {r: 128, g: 128, b: 128},
	"silver": {r: 192, g: 192, b: 192},
	"navy":   {b: 128},
	"yellow": {r: 255, g: 255},
}

var rgbPattern = regexp.MustCompile(`^rgb\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\)$`)

// parsePaint reads a colour. Unsupported paints such as gradient
// references report false and leave the inherited paint in place.
func parsePaint(v string) (paint, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch {
	case v == "none" || v == "transparent":
		return paint{none: true}, true
	case strings.HasPrefix(v, "#"):
		hex := v[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return paint{}, false
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return paint{}, false
		}
		return paint{r: int(n >> 16 & 0xff), g: int(n >> 8 & 0xff), b: int(n & 0xff)}, true
	case rgbPattern.MatchString(v):
		m := rgbPattern.FindStringSubmatch(v)
		c := [3]int{}
		for i := range c {
			n, _ := strconv.Atoi(m[i+1])
			c[i] = min(n, 255)
		}
		return paint{r: c[0], g: c[1], b: c[2]}, true
	}
	p, ok := namedColors[v]
	return p, ok
}
