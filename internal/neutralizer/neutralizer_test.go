package neutralizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vmlButton = `<!--[if mso]><v:roundrect xmlns:v="urn:schemas-microsoft-com:vml" href="https://shop.example/buy" style="height:40px" arcsize="10%"><center>Buy</center></v:roundrect><![endif]-->`

func TestNeutralize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		wantTouched bool
	}{
		{
			name:        "Plain link unwrapped and bare URL masked",
			input:       `<p>Visit <a href="https://evil.example/x">here</a> or https://evil.example/y</p>`,
			expected:    `<p>Visit here or [link removed]</p>`,
			wantTouched: true,
		},
		{
			name:        "Uppercase anchor",
			input:       `<A HREF="https://example.com">Click</A>`,
			expected:    `Click`,
			wantTouched: true,
		},
		{
			name:        "Anchor without href is unwrapped",
			input:       `<p><a name="top">Top</a></p>`,
			expected:    `<p>Top</p>`,
			wantTouched: true,
		},
		{
			name:        "Bare URL with query string",
			input:       `<p>See https://example.com/path?q=1 now</p>`,
			expected:    `<p>See [link removed] now</p>`,
			wantTouched: true,
		},
		{
			name:        "URL split by an anchor is masked once",
			input:       `<p>https://evil.example/<a href="https://evil.example/path">path</a> end</p>`,
			expected:    `<p>[link removed] end</p>`,
			wantTouched: true,
		},
		{
			name:        "Inert image button is untouched",
			input:       `<a href="#"><img src="button.png"></a>`,
			expected:    `<a href="#"><img src="button.png"></a>`,
			wantTouched: false,
		},
		{
			name:        "No links",
			input:       `<div class="x"><b>Hello</b><br>world</div>`,
			expected:    `<div class="x"><b>Hello</b><br>world</div>`,
			wantTouched: false,
		},
		{
			name:        "Script and comment content is left alone",
			input:       `<script>var u = "https://cdn.example/a.js";</script><!-- https://example.com -->`,
			expected:    `<script>var u = "https://cdn.example/a.js";</script><!-- https://example.com -->`,
			wantTouched: false,
		},
		{
			name:        "Full document keeps its structure",
			input:       `<html><body><a href="https://example.com">text</a></body></html>`,
			expected:    `<html><head></head><body>text</body></html>`,
			wantTouched: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := Neutralize(tt.input)
			touched := stats.Touched()
			assert.Equal(t, tt.expected, out)
			assert.Equal(t, tt.wantTouched, touched)
		})
	}
}

func TestNeutralize_ImageButton(t *testing.T) {
	input := `<table><tr><td><a href="https://shop.example/buy" class="btn"><img src="https://cdn.example/buy.png" alt="Buy"></a></td></tr></table>`

	out, stats := Neutralize(input)

	assert.True(t, stats.Touched())
	assert.Equal(t, 1, stats.AnchorHrefs)
	assert.Zero(t, stats.Unwrapped)
	assert.Contains(t, out, `<a href="#" class="btn">`)
	assert.Contains(t, out, `<img src="https://cdn.example/buy.png" alt="Buy"/>`, "Image attributes are not text and stay intact")
	assert.NotContains(t, out, "shop.example")
}

func TestNeutralize_ButtonHrefMissedByPrepass(t *testing.T) {
	// The quoted ">" stops the textual pass, the tree pass still catches it
	input := `<a data-label="a>b" href="https://example.com/go"><img src="b.png"></a>`

	out, stats := Neutralize(input)

	assert.Zero(t, stats.AnchorHrefs)
	assert.Equal(t, 1, stats.ButtonHrefs)
	assert.Contains(t, out, `href="#"`)
	assert.Contains(t, out, `<img src="b.png"/>`)
	assert.NotContains(t, out, "example.com/go")
}

func TestNeutralize_VMLButton(t *testing.T) {
	out, stats := Neutralize(vmlButton)

	assert.Equal(t, 1, stats.ShapeHrefs)
	assert.True(t, stats.Touched())
	assert.Contains(t, out, `href="#" style="height:40px" arcsize="10%"`)
	assert.NotContains(t, out, "shop.example")
}

func TestNeutralize_AnchorWrappingShape(t *testing.T) {
	input := `<a href="https://example.com/a"><v:shape href='https://example.com/s'>Go</v:shape></a>`

	out, stats := Neutralize(input)

	assert.Equal(t, 1, stats.ShapeHrefs)
	assert.Equal(t, 1, stats.AnchorHrefs)
	assert.Zero(t, stats.Unwrapped, "Anchor around shape markup is a button")
	assert.Contains(t, out, `<a href="#">`)
	assert.NotContains(t, out, "example.com")
}

func TestNeutralize_Malformed(t *testing.T) {
	out, stats := Neutralize(`<p><a href="https://example.com">unclosed <b>bold`)
	touched := stats.Touched()

	assert.True(t, touched)
	assert.NotContains(t, out, "<a")
	assert.Contains(t, out, "unclosed")
	assert.Contains(t, out, "bold")
}

func TestNeutralize_Idempotent(t *testing.T) {
	inputs := []string{
		`<p>Visit <a href="https://evil.example/x">here</a> or https://evil.example/y</p>`,
		`<a href='https://example.com'><img src=a.png></a>`,
		`<a href=https://example.com/unquoted>unquoted</a>`,
		vmlButton,
		`<a href="https://example.com/a"><v:roundrect href="https://example.com/r">Go</v:roundrect></a>`,
		`<html><head><title>https://example.com</title></head><body><a name="x">x</a> http://plain.example</body></html>`,
		`<p>no links</p>`,
	}

	for _, input := range inputs {
		first, _ := Neutralize(input)
		second, stats := Neutralize(first)
		touched := stats.Touched()

		assert.False(t, touched, "Second pass must not touch: %s", input)
		assert.Equal(t, first, second)
	}
}

func TestNeutralize_NoLiveDestinationSurvives(t *testing.T) {
	input := strings.Join([]string{
		`<a href="https://a.example/1">one</a>`,
		`<a href="https://b.example/2"><img src="x.png"></a>`,
		`<v:roundrect href="https://c.example/3"></v:roundrect>`,
		`<v:shape href="https://d.example/4"></v:shape>`,
		`text https://e.example/5`,
	}, "\n")

	out, stats := Neutralize(input)
	touched := stats.Touched()
	require.True(t, touched)

	for _, host := range []string{"a.example", "b.example", "c.example", "d.example", "e.example"} {
		assert.NotContains(t, out, host)
	}
}
