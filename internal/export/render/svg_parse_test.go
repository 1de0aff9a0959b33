package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransform(t *testing.T) {
	m, err := parseTransform("translate(10 20) scale(2)")
	require.NoError(t, err)
	x, y := m.apply(1, 1)
	assert.Equal(t, 12.0, x)
	assert.Equal(t, 22.0, y)
	assert.Equal(t, 2.0, m.scale())

	m, err = parseTransform("rotate(90)")
	require.NoError(t, err)
	x, y = m.apply(1, 0)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 1, y, 1e-9)
	assert.False(t, m.axisAligned())

	_, err = parseTransform("perspective(3)")
	assert.Error(t, err)
	_, err = parseTransform("matrix(1 0 0)")
	assert.Error(t, err)
}

func TestParsePaint(t *testing.T) {
	p, ok := parsePaint("#0d5aa7")
	require.True(t, ok)
	assert.Equal(t, paint{r: 0x0d, g: 0x5a, b: 0xa7}, p)

	p, ok = parsePaint("#fff")
	require.True(t, ok)
	assert.Equal(t, paint{r: 255, g: 255, b: 255}, p)

	p, ok = parsePaint("rgb(1, 2, 300)")
	require.True(t, ok)
	assert.Equal(t, paint{r: 1, g: 2, b: 255}, p)

	p, ok = parsePaint("none")
	require.True(t, ok)
	assert.False(t, p.visible())

	_, ok = parsePaint("url(#gradient)")
	assert.False(t, ok)
}

func TestLength(t *testing.T) {
	assert.Equal(t, 12.0, length("12px"))
	assert.Equal(t, 12.0, length("12"))
	assert.InDelta(t, 96.0, length("1in"), 1e-9)
	assert.Equal(t, 0.0, length("50%"))
	assert.Equal(t, 0.0, length("wide"))
	assert.Equal(t, 5.0, firstLength("5 10 15"))
}

func TestParseSVG(t *testing.T) {
	d, err := parseSVG([]byte(`<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100">
  <defs><rect id="hidden" width="5" height="5"/></defs>
  <g transform="translate(10,0)" fill="#ff0000" style="font-size:20px">
    <rect width="10" height="10"/>
    <text x="1" y="2">Hello <tspan font-weight="bold">there</tspan></text>
    <text x="0" y="0"><tspan x="5" y="6">one</tspan><tspan x="5" y="30">two</tspan></text>
    <g display="none"><circle r="3"/></g>
    <path d="M0 0 L10 0 L10 10 Z" stroke="black"/>
  </g>
  <image width="4" height="4" href="https://example.com/x.png"/>
</svg>`))
	require.NoError(t, err)
	assert.Equal(t, 200.0, d.width)
	assert.Equal(t, 100.0, d.height)

	var kinds []elementKind
	var texts []string
	for _, el := range d.elements {
		kinds = append(kinds, el.kind)
		if el.kind == kindText {
			texts = append(texts, el.text)
		}
	}
	assert.Equal(t, []elementKind{kindRect, kindText, kindText, kindText, kindPath}, kinds)
	assert.Equal(t, []string{"Hello there", "one", "two"}, texts)

	rect := d.elements[0]
	assert.Equal(t, paint{r: 255}, rect.style.fill)
	x, _ := rect.m.apply(0, 0)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, d.elements[1].style.fontSize)
	assert.Equal(t, 30.0, d.elements[3].y)

	path := d.elements[4]
	require.NotEmpty(t, path.segments)
	assert.Equal(t, byte('M'), path.segments[0].Cmd)
	assert.True(t, path.style.stroke.visible())
}

func TestParseSVGViewBox(t *testing.T) {
	d, err := parseSVG([]byte(`<svg viewBox="-5 -5 50 25" width="500"></svg>`))
	require.NoError(t, err)
	assert.Equal(t, -5.0, d.minX)
	assert.Equal(t, 25.0, d.height)
	assert.False(t, math.IsNaN(d.width))
}
