package extract_test

import (
	"testing"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/extract"
	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  already   plain  ", "already plain"},
		{"tags", "<p>Fraud <b>ring</b> busted</p>", "Fraud ring busted"},
		{"blocks separate words", "<p>one</p><p>two</p><br>three", "one two three"},
		{"entities", "Tom&nbsp;&amp;&nbsp;Jerry &lt;tag&gt; &quot;quoted&quot; it&#39;s", `Tom & Jerry <tag> "quoted" it's`},
		{"script dropped", "<div>keep<script>alert(1)</script><style>p{}</style></div>", "keep"},
		{"list", "<ul><li>a</li><li>b</li></ul>", "a b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, extract.StripHTML(tt.in))
		})
	}
}
